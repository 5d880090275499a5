package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
)

const defaultCleanupBatchSize = 1000

// CleanupStats summarizes one cleanup run.
type CleanupStats struct {
	Expired    int   `json:"expired"`
	Deleted    int   `json:"deleted"`
	DryRun     bool  `json:"dryRun"`
	DurationMs int64 `json:"durationMs"`
}

// CleanupWorker purges verifications past their TTL. Their votes go with
// them; the decay job later brings affected aggregates up to date.
type CleanupWorker struct {
	store     repository.Store
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	log       zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCleanupWorker(store repository.Store, cfg config.CleanupConfig, clk clock.Clock, log zerolog.Logger) *CleanupWorker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultCleanupBatchSize
	}
	return &CleanupWorker{
		store:     store,
		clock:     clk,
		interval:  cfg.Interval,
		batchSize: batch,
		log:       log.With().Str("component", "cleanup-worker").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start runs cleanup immediately, then every interval.
func (w *CleanupWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting")

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.log.Info().Msg("stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.log.Info().Msg("stopping (stop signal)")
			return
		}
	}
}

// Stop signals the worker to stop. Safe to call more than once.
func (w *CleanupWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *CleanupWorker) tick(ctx context.Context) {
	if _, err := w.Run(ctx, false); err != nil {
		w.log.Error().Err(err).Msg("cleanup run failed")
	}
}

// Run deletes expired verifications in batches. In dry-run mode it only
// counts them.
func (w *CleanupWorker) Run(ctx context.Context, dryRun bool) (CleanupStats, error) {
	start := time.Now()
	now := w.clock.Now().UTC()
	stats := CleanupStats{DryRun: dryRun}

	expired, err := w.store.CountExpired(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("count expired: %w", err)
	}
	stats.Expired = expired

	if !dryRun {
		for {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			n, err := w.store.DeleteExpired(ctx, now, w.batchSize)
			if err != nil {
				return stats, fmt.Errorf("delete expired: %w", err)
			}
			stats.Deleted += n
			if n < w.batchSize {
				break
			}
		}
	}

	stats.DurationMs = time.Since(start).Milliseconds()
	w.log.Info().
		Int("expired", stats.Expired).
		Int("deleted", stats.Deleted).
		Bool("dry_run", dryRun).
		Int64("duration_ms", stats.DurationMs).
		Msg("cleanup run complete")
	return stats, nil
}
