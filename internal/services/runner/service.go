// Package runner orchestrates the shutdown workflow.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/fgeck/autoshutdown/internal/services/poller"
	"github.com/fgeck/autoshutdown/internal/services/probe"
	"github.com/fgeck/autoshutdown/internal/services/serverlist"
	"github.com/rs/zerolog"
)

// Confirmation prompts shown before any host is contacted.
const (
	ConfirmShutdown = "Continue shutting off these servers?"
	ConfirmDryRun   = "Continue contacting off these servers? Dry run."
)

var (
	// ErrAborted is returned when the operator declines the confirmation.
	ErrAborted = errors.New("aborted by operator")
	// ErrNothingTouched is returned when no reachable host could be contacted.
	ErrNothingTouched = errors.New("unable to connect to any servers, nothing was done")
)

// Service defines the interface for the shutdown runner.
type Service interface {
	Run(ctx context.Context, opts models.Options) (*models.RunReport, error)
}

// ListLoader reads and parses a server list.
type ListLoader interface {
	Load(path string, format serverlist.Format) (*serverlist.Result, error)
}

// Transport contacts a single host. Prepare runs once, after confirmation
// and before the first Attempt.
type Transport interface {
	Prepare() error
	Attempt(ctx context.Context, host models.HostRecord, dryRun bool) models.Attempt
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(label string) (bool, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	loader    ListLoader
	format    serverlist.Format
	prober    probe.Service
	transport Transport
	confirmer Confirmer
	pollerSvc poller.Service
	out       io.Writer
	logger    zerolog.Logger
}

// Deps groups the collaborators of a runner.
type Deps struct {
	Loader    ListLoader
	Format    serverlist.Format
	Prober    probe.Service
	Transport Transport
	Confirmer Confirmer
	Poller    poller.Service
	Out       io.Writer // operator-facing summaries, stdout when nil
}

// New creates a new runner service.
func New(logger zerolog.Logger, deps Deps) *Impl {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &Impl{
		loader:    deps.Loader,
		format:    deps.Format,
		prober:    deps.Prober,
		transport: deps.Transport,
		confirmer: deps.Confirmer,
		pollerSvc: deps.Poller,
		out:       out,
		logger:    logger,
	}
}

// Run executes the complete shutdown workflow: load, probe, confirm,
// shut down (or verify, in dry-run mode), then wait for the hosts to go
// dark. Per-host failures never stop the run; it fails only when the list
// cannot be loaded, the operator declines, the transport cannot be
// prepared, or no host was touched.
func (s *Impl) Run(ctx context.Context, opts models.Options) (*models.RunReport, error) {
	startTime := time.Now()
	report := &models.RunReport{DryRun: opts.DryRun}
	defer func() { report.Duration = time.Since(startTime) }()

	s.logger.Info().
		Str("server_list", opts.ServerList).
		Bool("dry_run", opts.DryRun).
		Msg("starting shutdown run")

	// Step 1: Load and parse the server list
	list, err := s.loader.Load(opts.ServerList, s.format)
	if err != nil {
		return report, err
	}
	report.Candidates = list.Hosts

	// Step 2: Probe every candidate
	report.Reachable, report.Down = s.probeAll(ctx, report.Candidates)

	if len(report.Reachable) == 0 {
		s.println("No specified servers are up. Exiting.")
		return report, nil
	}

	// Step 3: Confirm with the operator
	s.println("Servers to be powered off:")
	s.printHosts(report.Reachable)

	label := ConfirmShutdown
	if opts.DryRun {
		label = ConfirmDryRun
	}
	ok, err := s.confirmer.Confirm(label)
	if err != nil {
		return report, err
	}
	if !ok {
		s.logger.Warn().Msg("confirmation declined, nothing was done")
		return report, ErrAborted
	}

	// Step 4: Load key material
	if err := s.transport.Prepare(); err != nil {
		return report, fmt.Errorf("failed to prepare transport: %w", err)
	}

	// Step 5: Shut down or verify each reachable host independently
	for _, h := range report.Reachable {
		attempt := s.transport.Attempt(ctx, h, opts.DryRun)
		report.Attempts = append(report.Attempts, attempt)
		if attempt.Touched {
			report.Touched = append(report.Touched, h)
			continue
		}
		s.logger.Warn().
			Str("host", h.Hostname).
			Str("user", h.Username()).
			Str("reason", string(attempt.Reason)).
			Str("detail", attempt.Detail).
			Msg("host skipped")
	}

	if len(report.Touched) == 0 {
		s.println("Unable to connect to any servers. Nothing was done.")
		return report, ErrNothingTouched
	}

	// Step 6: Wait for the touched hosts to go down
	if opts.DryRun {
		s.logger.Info().Int("hosts", len(report.Touched)).Msg("dry run, not waiting for shutdown")
	} else {
		pollResult, err := s.pollerSvc.WaitForShutdown(ctx, report.Touched)
		if err != nil {
			return report, fmt.Errorf("waiting for shutdown failed: %w", err)
		}
		report.Poll = pollResult
		if pollResult.Error != nil {
			return report, fmt.Errorf("waiting for shutdown failed: %w", pollResult.Error)
		}
	}

	// Step 7: Report
	if opts.DryRun {
		s.println("The following servers were contacted by this invocation (dry run):")
	} else {
		s.println("The following servers were shut down by this invocation:")
	}
	s.printHosts(report.Touched)
	s.println("Success!")

	s.logger.Info().
		Int("touched", len(report.Touched)).
		Int("skipped", len(report.Attempts)-len(report.Touched)).
		Dur("duration", time.Since(startTime)).
		Msg("shutdown run completed successfully")

	return report, nil
}

func (s *Impl) probeAll(ctx context.Context, hosts []models.HostRecord) (up, down []models.HostRecord) {
	for _, h := range hosts {
		if s.prober.IsUp(ctx, h.Hostname) {
			s.println(h.Hostname + " is up.")
			up = append(up, h)
		} else {
			s.println(h.Hostname + " appears down (did not respond to ping).")
			down = append(down, h)
		}
	}
	return up, down
}

func (s *Impl) printHosts(hosts []models.HostRecord) {
	for _, h := range hosts {
		s.println("\t" + h.Hostname)
	}
}

func (s *Impl) println(line string) {
	_, _ = fmt.Fprintln(s.out, line)
}
