package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store"
	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

// EventPruner periodically deletes access events older than a retention
// period. It runs as a supervised service; a retention of 0 disables it.
type EventPruner struct {
	store     store.AccessEventStore
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// PrunerConfig holds the parameters for NewEventPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of access history to keep.
	// 0 keeps everything.
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

func NewEventPruner(s store.AccessEventStore, cfg PrunerConfig, logger zerolog.Logger) *EventPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &EventPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger.With().Str("component", "event_pruner").Logger(),
		now:       time.Now,
	}
}

func (p *EventPruner) Enabled() bool {
	return p.retention > 0
}

// Serve prunes once immediately, then on every interval until ctx ends.
func (p *EventPruner) Serve(ctx context.Context) error {
	if !p.Enabled() {
		p.logger.Info().Msg("event pruner disabled (retention=0)")
		<-ctx.Done()
		return ctx.Err()
	}

	p.logger.Info().
		Int("retention_days", int(p.retention.Hours()/24)).
		Int("interval_hours", int(p.interval.Hours())).
		Msg("event pruner started")

	p.PruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

func (p *EventPruner) String() string {
	return "event-pruner"
}

// PruneOnce deletes everything older than the retention window and returns
// how many events were removed.
func (p *EventPruner) PruneOnce(ctx context.Context) int64 {
	if !p.Enabled() {
		return 0
	}
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error().Err(err).Msg("access event prune failed")
		return 0
	}
	if deleted > 0 {
		metrics.EventsPruned.Add(float64(deleted))
		p.logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("pruned access events")
	}
	return deleted
}
