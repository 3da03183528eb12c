package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
)

// Keepalive wires the cron-like driver to periodic session refreshes.
type Keepalive struct {
	driver   ports.Scheduler
	sessions map[domain.SourceID]ports.Refresher
	logger   *slog.Logger
}

// NewKeepalive returns a helper that refreshes every session on the driver's schedule.
func NewKeepalive(driver ports.Scheduler, sessions map[domain.SourceID]ports.Refresher, logger *slog.Logger) *Keepalive {
	if logger != nil {
		logger = logger.With("component", "keepalive")
	}
	return &Keepalive{driver: driver, sessions: sessions, logger: logger}
}

// Start registers the refresh job with the provided scheduler.
func (k *Keepalive) Start(ctx context.Context) error {
	if k.driver == nil || len(k.sessions) == 0 {
		return nil
	}

	job := func(trigger time.Time) {
		k.RefreshAll(ctx)
	}

	return k.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (k *Keepalive) Stop(ctx context.Context) error {
	if k.driver == nil {
		return nil
	}

	return k.driver.Stop(ctx)
}

// RefreshAll refreshes each session in source order and returns the failures by source.
// Stale sessions re-authenticate; fresh ones are left alone.
func (k *Keepalive) RefreshAll(ctx context.Context) map[domain.SourceID]error {
	sources := make([]domain.SourceID, 0, len(k.sessions))
	for source := range k.sessions {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	failures := map[domain.SourceID]error{}
	for _, source := range sources {
		if err := k.sessions[source].RefreshIfNeeded(ctx); err != nil {
			failures[source] = err
			if k.logger != nil {
				k.logger.Warn("session refresh failed", "source", source, "error", err)
			}
			continue
		}
		if k.logger != nil {
			k.logger.Debug("session fresh", "source", source)
		}
	}
	return failures
}
