package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

func TestVote_RecordAndRepeat(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	v := f.submit(t, input(testNPI, testPlan, "10.0.0.1", true))

	resp, err := f.svc.VoteOnVerification(ctx, v.Verification.ID, "up", "10.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Upvotes)
	assert.Equal(t, 0, resp.Downvotes)
	assert.Equal(t, 1, resp.NetVotes)
	assert.False(t, resp.VoteChanged)
	assert.Equal(t, "Vote recorded", resp.Message)
	require.NotNil(t, resp.Acceptance)
	assert.Equal(t, 75, resp.Acceptance.ConfidenceScore)

	_, err = f.svc.VoteOnVerification(ctx, v.Verification.ID, "UP", "10.1.1.1")
	require.Error(t, err)
	assert.Equal(t, "ALREADY_VOTED", apperror.From(err).Code)
	assert.Equal(t, 409, apperror.From(err).Status())
	assert.Equal(t, 1, f.store.VoteCount())

	resp, err = f.svc.VoteOnVerification(ctx, v.Verification.ID, "up", "10.1.1.2")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Upvotes)
	assert.Equal(t, 2, f.store.VoteCount())
}

func TestVote_FlipAndFlipBack(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	v := f.submit(t, input(testNPI, testPlan, "10.0.0.1", true))

	_, err := f.svc.VoteOnVerification(ctx, v.Verification.ID, "up", "10.1.1.1")
	require.NoError(t, err)

	resp, err := f.svc.VoteOnVerification(ctx, v.Verification.ID, "down", "10.1.1.1")
	require.NoError(t, err)
	assert.True(t, resp.VoteChanged)
	assert.Equal(t, "Vote changed", resp.Message)
	assert.Equal(t, 0, resp.Upvotes)
	assert.Equal(t, 1, resp.Downvotes)
	assert.Equal(t, -1, resp.NetVotes)
	// one accept plus one downvote: agreement 1 of 2 scores 5
	assert.Equal(t, 60, resp.Acceptance.ConfidenceScore)
	assert.Equal(t, 1, f.store.VoteCount(), "a flip replaces the vote")

	resp, err = f.svc.VoteOnVerification(ctx, v.Verification.ID, "up", "10.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Upvotes)
	assert.Equal(t, 0, resp.Downvotes)
	assert.Equal(t, 75, resp.Acceptance.ConfidenceScore)
}

func TestVote_MovesConsensus(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	a := f.submit(t, input(testNPI, testPlan, "10.0.0.1", true))
	f.submit(t, input(testNPI, testPlan, "10.0.0.2", true))
	f.submit(t, input(testNPI, testPlan, "10.0.0.3", false))

	// 2-1 at 80 is accepted; downvotes on the majority drag agreement to 2 of 5.
	var last *model.VoteResponse
	for _, ip := range []string{"10.1.1.1", "10.1.1.2"} {
		resp, err := f.svc.VoteOnVerification(ctx, a.Verification.ID, "down", ip)
		require.NoError(t, err)
		last = resp
	}
	assert.Equal(t, 2, last.Downvotes)
	assert.Equal(t, 75, last.Acceptance.ConfidenceScore)
	assert.Equal(t, model.StatusAccepted, last.Acceptance.Status, "status follows verification counts, not votes")

	got, err := f.store.GetAcceptance(ctx, testNPI, testPlan)
	require.NoError(t, err)
	assert.Equal(t, 75, got.ConfidenceScore)
}

func TestVote_UpvotesOnMinorityLowerScore(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.submit(t, input(testNPI, testPlan, "10.0.0.1", true))
	f.submit(t, input(testNPI, testPlan, "10.0.0.2", true))
	r := f.submit(t, input(testNPI, testPlan, "10.0.0.3", false))
	assert.Equal(t, 80, r.Acceptance.ConfidenceScore)

	// backing the rejecting verification argues against the accepted majority
	want := []int{75, 70, 70}
	prev := r.Acceptance.ConfidenceScore
	for i, ip := range []string{"10.1.1.1", "10.1.1.2", "10.1.1.3"} {
		resp, err := f.svc.VoteOnVerification(ctx, r.Verification.ID, "up", ip)
		require.NoError(t, err)
		assert.Equal(t, want[i], resp.Acceptance.ConfidenceScore, "after %d upvotes", i+1)
		assert.LessOrEqual(t, resp.Acceptance.ConfidenceScore, prev)
		assert.Equal(t, model.StatusAccepted, resp.Acceptance.Status)
		prev = resp.Acceptance.ConfidenceScore
	}
	assert.Less(t, prev, 80)

	// a downvote on the minority verification agrees with the majority again
	resp, err := f.svc.VoteOnVerification(ctx, r.Verification.ID, "down", "10.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, 75, resp.Acceptance.ConfidenceScore)
}

func TestVote_NotFound(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.VoteOnVerification(ctx, "6f1c1a34-3c3e-4c1b-9d4e-7e0a0c1b2d3e", "up", "10.1.1.1")
	assert.Equal(t, "VERIFICATION_NOT_FOUND", apperror.From(err).Code)

	v := f.submit(t, input(testNPI, testPlan, "10.0.0.1", true))
	f.clock.Advance(config.Default().Verification.TTL + time.Second)
	_, err = f.svc.VoteOnVerification(ctx, v.Verification.ID, "up", "10.1.1.1")
	assert.Equal(t, "VERIFICATION_NOT_FOUND", apperror.From(err).Code)
	assert.Zero(t, f.store.VoteCount())
}

func TestVote_Validation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.VoteOnVerification(ctx, "not-a-uuid", "up", "10.1.1.1")
	require.Error(t, err)
	assert.Equal(t, map[string]string{"field": "verificationId"}, apperror.From(err).Details)

	_, err = f.svc.VoteOnVerification(ctx, "6f1c1a34-3c3e-4c1b-9d4e-7e0a0c1b2d3e", "sideways", "10.1.1.1")
	require.Error(t, err)
	assert.Equal(t, map[string]string{"field": "vote"}, apperror.From(err).Details)
}
