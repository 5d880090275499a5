package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

const day = 24 * time.Hour

func newDecayWorker(f *fixture) *DecayWorker {
	cfg := config.Default()
	return NewDecayWorker(f.store, NewConfidenceService(), f.cache, cfg.Decay,
		cfg.Verification.TTL, f.clock, zerolog.Nop())
}

func seedConsensus(t *testing.T, f *fixture) {
	t.Helper()
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		f.submit(t, input(testNPI, testPlan, ip, true))
	}
	f.submit(t, input(otherNPI, otherPlan, "10.0.0.1", false))
}

func TestDecay_ScoresFallWithAge(t *testing.T) {
	f := newFixture(t, false)
	seedConsensus(t, f)
	w := newDecayWorker(f)
	ctx := context.Background()

	f.clock.Advance(100 * day)
	stats, err := w.Run(ctx, DecayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Updated)
	assert.Zero(t, stats.Errors)

	a, err := f.store.GetAcceptance(ctx, testNPI, testPlan)
	require.NoError(t, err)
	// recency drops from 30 to 5 for a 60-day threshold
	assert.Equal(t, 65, a.ConfidenceScore)
	assert.Equal(t, model.LevelMedium, a.ConfidenceLevel)
	assert.Equal(t, model.StatusAccepted, a.Status)

	stats, err = w.Run(ctx, DecayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Unchanged)
	assert.Zero(t, stats.Updated)

	f.clock.Advance(81 * day)
	_, err = w.Run(ctx, DecayOptions{})
	require.NoError(t, err)

	a, err = f.store.GetAcceptance(ctx, testNPI, testPlan)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnknown, a.Status)
	assert.Zero(t, a.VerificationCount)
	assert.Equal(t, 15, a.ConfidenceScore)
	assert.Equal(t, model.LevelVeryLow, a.ConfidenceLevel)
	assert.Nil(t, a.LastVerified)
}

func TestDecay_DryRun(t *testing.T) {
	f := newFixture(t, false)
	seedConsensus(t, f)
	w := newDecayWorker(f)
	ctx := context.Background()

	f.clock.Advance(100 * day)
	stats, err := w.Run(ctx, DecayOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 2, stats.Updated)

	a, err := f.store.GetAcceptance(ctx, testNPI, testPlan)
	require.NoError(t, err)
	assert.Equal(t, 90, a.ConfidenceScore, "dry run must not write")
}

func TestDecay_LimitAndBatching(t *testing.T) {
	f := newFixture(t, false)
	seedConsensus(t, f)
	f.submit(t, input(psychNPI, testPlan, "10.0.0.9", true))
	w := newDecayWorker(f)

	f.clock.Advance(100 * day)
	stats, err := w.Run(context.Background(), DecayOptions{Limit: 2, BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)

	stats, err = w.Run(context.Background(), DecayOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Updated, "only the row past the limit was still stale")
}

func TestDecay_RowErrorsAreSkipped(t *testing.T) {
	f := newFixture(t, false)
	seedConsensus(t, f)
	w := newDecayWorker(f)
	f.store.TallyHook = func(npi, _ string) error {
		if npi == otherNPI {
			return errors.New("boom")
		}
		return nil
	}

	f.clock.Advance(100 * day)
	stats, err := w.Run(context.Background(), DecayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Errors)
}

func TestDecay_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, false)
	seedConsensus(t, f)
	w := newDecayWorker(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := w.Run(ctx, DecayOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Processed)
}

func TestDecay_StartStop(t *testing.T) {
	f := newFixture(t, false)
	seedConsensus(t, f)
	f.clock.Advance(100 * day)
	w := newDecayWorker(f)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	a, err := f.store.GetAcceptance(context.Background(), testNPI, testPlan)
	require.NoError(t, err)
	assert.Equal(t, 65, a.ConfidenceScore, "start runs one pass immediately")
}
