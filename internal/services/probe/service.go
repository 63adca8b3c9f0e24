// Package probe checks whether hosts answer ICMP echo.
package probe

import (
	"context"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for reachability checks.
type Service interface {
	IsUp(ctx context.Context, hostname string) bool
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Run executes a command, discarding its output.
func (e *DefaultExecutor) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}

// Impl pings with the system ping binary.
type Impl struct {
	executor CommandExecutor
	cfg      models.ProbeConfig
	logger   zerolog.Logger
}

// New creates a new probe service.
func New(logger zerolog.Logger, cfg models.ProbeConfig) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		cfg:      cfg,
		logger:   logger,
	}
}

// NewWithExecutor creates a new probe service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, cfg models.ProbeConfig, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// IsUp sends a single echo request. Every failure, including an unknown
// name or a missing ping binary, is reported as down.
func (s *Impl) IsUp(ctx context.Context, hostname string) bool {
	deadline := deadlineSeconds(s.cfg.Timeout)

	// ping enforces -w itself; the context is a backstop for a hung process.
	ctx, cancel := context.WithTimeout(ctx, time.Duration(deadline)*time.Second+time.Second)
	defer cancel()

	err := s.executor.Run(ctx, s.cfg.Binary, "-c1", "-w"+strconv.Itoa(deadline), hostname)
	if err != nil {
		s.logger.Debug().Err(err).Str("host", hostname).Msg("ping failed")
		return false
	}
	return true
}

// deadlineSeconds rounds timeout up to whole seconds, minimum one.
func deadlineSeconds(timeout time.Duration) int {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
