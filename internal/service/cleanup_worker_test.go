package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
)

func TestCleanup_DeletesExpiredWithVotes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 3; i++ {
		v := f.submit(t, input(testNPI, testPlan, fmt.Sprintf("10.0.0.%d", i), true))
		ids = append(ids, v.Verification.ID)
	}
	_, err := f.svc.VoteOnVerification(ctx, ids[0], "up", "10.1.1.1")
	require.NoError(t, err)

	f.clock.Advance(10 * day)
	f.submit(t, input(otherNPI, otherPlan, "10.0.0.1", true))

	f.clock.Advance(175 * day)
	w := NewCleanupWorker(f.store, config.CleanupConfig{BatchSize: 2}, f.clock, zerolog.Nop())

	stats, err := w.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Expired)
	assert.Zero(t, stats.Deleted)
	assert.Equal(t, 1, f.store.VoteCount())

	stats, err = w.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Expired)
	assert.Equal(t, 3, stats.Deleted)
	assert.Zero(t, f.store.VoteCount())

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalVerifications)

	stats, err = w.Run(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, stats.Expired)
	assert.Zero(t, stats.Deleted)
}
