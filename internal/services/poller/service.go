// Package poller waits for shut-down hosts to stop answering pings.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/fgeck/autoshutdown/internal/services/probe"
	"github.com/rs/zerolog"
)

// Service defines the interface for the liveness poll.
type Service interface {
	WaitForShutdown(ctx context.Context, hosts []models.HostRecord) (*models.PollResult, error)
}

// Impl implements the poller Service interface.
type Impl struct {
	prober probe.Service
	cfg    models.PollConfig
	logger zerolog.Logger
}

// New creates a new poller service.
func New(logger zerolog.Logger, cfg models.PollConfig, prober probe.Service) *Impl {
	return &Impl{
		prober: prober,
		cfg:    cfg,
		logger: logger,
	}
}

// WaitForShutdown re-probes hosts every interval until none respond. A host
// that fails a probe is removed for good, even if it answers again later.
// With no timeout configured the wait is unbounded: a host that never goes
// down (firewalled, or the command silently failed) keeps it running until
// the context is cancelled.
func (s *Impl) WaitForShutdown(ctx context.Context, hosts []models.HostRecord) (*models.PollResult, error) {
	result := &models.PollResult{}
	start := time.Now()

	stillUp := make([]models.HostRecord, len(hosts))
	copy(stillUp, hosts)

	var deadline <-chan time.Time
	if s.cfg.Timeout > 0 {
		timer := time.NewTimer(s.cfg.Timeout)
		defer timer.Stop()
		deadline = timer.C
	} else {
		s.logger.Warn().Msg("no poll timeout configured, waiting until every host is down")
	}

	for len(stillUp) > 0 {
		s.logger.Info().Int("remaining", len(stillUp)).Msgf("waiting for shutdown of %d servers", len(stillUp))

		select {
		case <-ctx.Done():
			result.StillUp = stillUp
			result.WaitDuration = time.Since(start)
			result.Error = ctx.Err()
			return result, nil
		case <-deadline:
			result.StillUp = stillUp
			result.WaitDuration = time.Since(start)
			result.Error = fmt.Errorf("timeout after %s waiting for %d host(s) to go down", s.cfg.Timeout, len(stillUp))
			return result, nil
		case <-time.After(s.cfg.Interval):
		}

		result.Rounds++
		remaining := make([]models.HostRecord, 0, len(stillUp))
		for _, h := range stillUp {
			now := time.Now().Format(time.DateTime)
			if s.prober.IsUp(ctx, h.Hostname) {
				s.logger.Info().Str("host", h.Hostname).Str("at", now).Msg("still up")
				remaining = append(remaining, h)
				continue
			}
			s.logger.Info().Str("host", h.Hostname).Str("at", now).Msg("went down")
			result.WentDown = append(result.WentDown, h)
		}
		stillUp = remaining
	}

	result.WaitDuration = time.Since(start)

	s.logger.Info().
		Int("rounds", result.Rounds).
		Dur("duration", result.WaitDuration).
		Msg("all hosts are down")

	return result, nil
}
