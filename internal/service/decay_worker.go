package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
)

const defaultDecayBatchSize = 100

// DecayOptions controls one decay run.
type DecayOptions struct {
	DryRun bool
	// Limit caps the number of aggregates processed; zero means no cap.
	Limit     int
	BatchSize int
}

// DecayStats summarizes one decay run.
type DecayStats struct {
	Processed int           `json:"processed"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Errors    int           `json:"errors"`
	DryRun    bool          `json:"dryRun"`
	Duration  time.Duration `json:"-"`
	// DurationMs mirrors Duration for JSON output.
	DurationMs int64 `json:"durationMs"`
}

// DecayWorker periodically recomputes every acceptance aggregate so scores
// fall as verifications age, without waiting for new activity.
type DecayWorker struct {
	store     repository.Store
	scorer    *ConfidenceService
	cache     *CacheService
	clock     clock.Clock
	ttl       time.Duration
	interval  time.Duration
	batchSize int
	log       zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewDecayWorker(
	store repository.Store,
	scorer *ConfidenceService,
	cache *CacheService,
	cfg config.DecayConfig,
	ttl time.Duration,
	clk clock.Clock,
	log zerolog.Logger,
) *DecayWorker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultDecayBatchSize
	}
	return &DecayWorker{
		store:     store,
		scorer:    scorer,
		cache:     cache,
		clock:     clk,
		ttl:       ttl,
		interval:  cfg.Interval,
		batchSize: batch,
		log:       log.With().Str("component", "decay-worker").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start runs one decay pass immediately, then every interval, until ctx is
// cancelled or Stop is called.
func (w *DecayWorker) Start(ctx context.Context) {
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
func (w *DecayWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *DecayWorker) tick(ctx context.Context) {
	stats, err := w.Run(ctx, DecayOptions{})
	if err != nil {
		w.log.Error().Err(err).Int("processed", stats.Processed).Msg("decay run aborted")
	}
}

// Run recomputes aggregates page by page along a stable id cursor.
// Cancellation is honoured between pages; a failing row is counted and
// skipped.
func (w *DecayWorker) Run(ctx context.Context, opts DecayOptions) (DecayStats, error) {
	start := time.Now()
	stats := DecayStats{DryRun: opts.DryRun}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = w.batchSize
	}
	// Rows within a page finish even if ctx is cancelled mid-page.
	rowCtx := context.WithoutCancel(ctx)

	finish := func(err error) (DecayStats, error) {
		stats.Duration = time.Since(start)
		stats.DurationMs = stats.Duration.Milliseconds()
		metrics.DecayRunDuration.Observe(stats.Duration.Seconds())
		w.log.Info().
			Int("processed", stats.Processed).
			Int("updated", stats.Updated).
			Int("unchanged", stats.Unchanged).
			Int("errors", stats.Errors).
			Bool("dry_run", stats.DryRun).
			Dur("duration_ms", stats.Duration).
			Msg("decay run complete")
		return stats, err
	}

	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		page, err := w.store.ListAcceptancePage(ctx, cursor, batch)
		if err != nil {
			return finish(fmt.Errorf("list acceptance page after %d: %w", cursor, err))
		}

		for _, a := range page {
			if opts.Limit > 0 && stats.Processed >= opts.Limit {
				return finish(nil)
			}
			cursor = a.ID
			stats.Processed++

			changed, err := w.processRow(rowCtx, a.ID, opts.DryRun)
			switch {
			case err != nil:
				stats.Errors++
				w.log.Error().Err(err).Int64("acceptance_id", a.ID).Msg("decay row failed")
			case changed:
				stats.Updated++
			default:
				stats.Unchanged++
			}
		}

		if len(page) < batch {
			return finish(nil)
		}
	}
}

// processRow recomputes one aggregate under its row lock and writes it back
// if anything derived changed.
func (w *DecayWorker) processRow(ctx context.Context, id int64, dryRun bool) (bool, error) {
	now := w.clock.Now().UTC()
	var (
		changed bool
		before  model.AcceptanceAggregate
		after   *model.AcceptanceAggregate
	)
	err := w.store.InTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAcceptanceByID(ctx, id)
		if err != nil {
			return fmt.Errorf("lock acceptance: %w", err)
		}
		before = *a
		if _, err := recomputeAggregate(ctx, tx, w.scorer, a, w.ttl, now); err != nil {
			return err
		}
		changed = derivedChanged(&before, a)
		if !changed || dryRun {
			return nil
		}
		a.UpdatedAt = now
		after = a
		return tx.UpdateAcceptance(ctx, a)
	})
	if err != nil {
		return false, err
	}

	if after != nil {
		metrics.DecayRowsUpdated.Inc()
		recordTransition(before.Status, after.Status)
		bestEffort(w.log, "invalidate aggregate cache", func(ctx context.Context) error {
			return w.cache.InvalidateAggregate(ctx, after.ProviderNPI, after.PlanID)
		})
	}
	return changed, nil
}
