// Package rpc shuts Windows hosts down with the Samba "net rpc" client.
//
// The client reports every failure as a non-zero exit, so authentication
// and network problems are not told apart.
package rpc

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for remote-admin shutdown operations.
type Service interface {
	Prepare() error
	Attempt(ctx context.Context, host models.HostRecord, dryRun bool) models.Attempt
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Impl implements the rpc Service interface.
type Impl struct {
	executor CommandExecutor
	cfg      models.RPCConfig
	logger   zerolog.Logger
}

// New creates a new rpc service.
func New(logger zerolog.Logger, cfg models.RPCConfig) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		cfg:      cfg,
		logger:   logger,
	}
}

// NewWithExecutor creates a new rpc service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, cfg models.RPCConfig, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Prepare is a no-op; credentials travel with each host record.
func (s *Impl) Prepare() error {
	return nil
}

// buildArgs returns the net arguments for host. A dry run lists the remote
// registry configuration instead of shutting down.
func buildArgs(host models.HostRecord, dryRun bool) []string {
	var args []string
	if dryRun {
		args = []string{"rpc", "conf", "list"}
	} else {
		args = []string{"rpc", "shutdown"}
	}
	creds := host.Credentials
	return append(args, "-I", host.Hostname, "-U", creds.Username+"%"+creds.Password)
}

// Attempt runs net rpc against host with its own credentials.
func (s *Impl) Attempt(ctx context.Context, host models.HostRecord, dryRun bool) models.Attempt {
	if host.Credentials == nil {
		s.logger.Warn().Str("host", host.Hostname).Msg("no credentials for host")
		return models.Skipped(host, models.ReasonMissingCredentials, nil)
	}

	s.logger.Info().
		Str("host", host.Hostname).
		Str("user", host.Credentials.Username).
		Bool("dry_run", dryRun).
		Msg("contacting host")

	output, err := s.executor.Execute(ctx, s.cfg.Binary, buildArgs(host, dryRun)...)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("host", host.Hostname).
			Str("user", host.Credentials.Username).
			Msg("failed to connect")
		a := models.Skipped(host, models.ReasonCommandFailed, fmt.Errorf("net rpc failed: %w", err))
		a.Output = string(output)
		return a
	}

	return models.Touched(host, string(output))
}
