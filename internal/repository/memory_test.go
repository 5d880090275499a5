package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded() *MemoryStore {
	m := NewMemoryStore()
	m.AddProvider("1234567890", "Dr. Rivera", "Family Medicine")
	m.AddPlan("BCBS-PPO", "Blue PPO")
	return m
}

func verification(id, ip string, accepts bool, created time.Time) *model.VerificationRecord {
	return &model.VerificationRecord{
		ID:               id,
		ProviderNPI:      "1234567890",
		PlanID:           "BCBS-PPO",
		AcceptsInsurance: accepts,
		SourceIPHash:     ip,
		CreatedAt:        created,
		ExpiresAt:        created.AddDate(0, 6, 0),
	}
}

func TestMemoryStore_TxRollback(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.InTx(ctx, func(tx Tx) error {
		_, err := tx.LockAcceptance(ctx, "1234567890", "BCBS-PPO", t0)
		require.NoError(t, err)
		require.NoError(t, tx.InsertVerification(ctx, verification("v1", "ip1", true, t0)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.GetAcceptance(ctx, "1234567890", "BCBS-PPO")
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := m.Stats(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n.TotalVerifications)
}

func TestMemoryStore_LockAcceptanceCreatesUnknown(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	var id int64
	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		a, err := tx.LockAcceptance(ctx, "1234567890", "BCBS-PPO", t0)
		require.NoError(t, err)
		assert.Equal(t, model.StatusUnknown, a.Status)
		assert.Zero(t, a.ConfidenceScore)
		id = a.ID
		return nil
	}))

	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		a, err := tx.LockAcceptance(ctx, "1234567890", "BCBS-PPO", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, t0, a.CreatedAt)
		return nil
	}))
}

func TestMemoryStore_SybilAndTally(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		v := verification("v1", "ip1", true, t0)
		v.ContactHash = "c1"
		require.NoError(t, tx.InsertVerification(ctx, v))
		require.NoError(t, tx.InsertVerification(ctx, verification("v2", "ip2", false, t0.Add(time.Minute))))
		if _, _, err := tx.AdjustVoteCounts(ctx, "v1", 2, 1); err != nil {
			return err
		}
		_, _, err := tx.AdjustVoteCounts(ctx, "v2", 3, 0)
		return err
	}))

	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		match, err := tx.HasRecentSubmission(ctx, "1234567890", "BCBS-PPO", "ip1", "", t0.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, SybilMatch{SameIP: true}, match)

		match, err = tx.HasRecentSubmission(ctx, "1234567890", "BCBS-PPO", "ip9", "c1", t0.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, SybilMatch{SameContact: true}, match)

		match, err = tx.HasRecentSubmission(ctx, "1234567890", "BCBS-PPO", "ip1", "c1", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, SybilMatch{}, match)

		tally, err := tx.TallyPair(ctx, "1234567890", "BCBS-PPO", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, tally.Accepted)
		assert.Equal(t, 1, tally.Rejected)
		assert.Equal(t, 2, tally.AcceptUpvotes)
		assert.Equal(t, 1, tally.AcceptDownvotes)
		assert.Equal(t, 3, tally.RejectUpvotes)
		assert.Zero(t, tally.RejectDownvotes)
		require.NotNil(t, tally.LastVerifiedAt)
		assert.Equal(t, t0.Add(time.Minute), *tally.LastVerifiedAt)

		tally, err = tx.TallyPair(ctx, "1234567890", "BCBS-PPO", t0.AddDate(1, 0, 0))
		require.NoError(t, err)
		assert.Zero(t, tally.Count())
		return nil
	}))
}

func TestMemoryStore_Votes(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertVerification(ctx, verification("v1", "ip1", true, t0)))
		vote := &model.VoteRecord{VerificationID: "v1", SourceIPHash: "voter", Direction: model.VoteUp, CreatedAt: t0, UpdatedAt: t0}
		require.NoError(t, tx.InsertVote(ctx, vote))
		assert.NotZero(t, vote.ID)

		dup := &model.VoteRecord{VerificationID: "v1", SourceIPHash: "voter", Direction: model.VoteDown}
		assert.ErrorIs(t, tx.InsertVote(ctx, dup), ErrDuplicate)

		require.NoError(t, tx.UpdateVoteDirection(ctx, vote.ID, model.VoteDown, t0.Add(time.Minute)))
		got, err := tx.GetVote(ctx, "v1", "voter")
		require.NoError(t, err)
		assert.Equal(t, model.VoteDown, got.Direction)

		_, err = tx.GetVote(ctx, "v1", "someone-else")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
	assert.Equal(t, 1, m.VoteCount())
}

func TestMemoryStore_DeleteExpiredCascadesVotes(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	require.NoError(t, m.InTx(ctx, func(tx Tx) error {
		old := verification("old", "ip1", true, t0.AddDate(-1, 0, 0))
		require.NoError(t, tx.InsertVerification(ctx, old))
		require.NoError(t, tx.InsertVerification(ctx, verification("new", "ip2", true, t0)))
		return tx.InsertVote(ctx, &model.VoteRecord{VerificationID: "old", SourceIPHash: "voter", Direction: model.VoteUp})
	}))

	n, err := m.CountExpired(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := m.DeleteExpired(ctx, t0, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Zero(t, m.VoteCount())

	recent, err := m.RecentVerifications(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)
}

func TestMemoryStore_ListAcceptancePage(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.PutAcceptance(model.AcceptanceAggregate{ProviderNPI: "1234567890", PlanID: string(rune('A' + i))})
	}

	var seen []int64
	cursor := int64(0)
	for {
		page, err := m.ListAcceptancePage(ctx, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, a := range page {
			seen = append(seen, a.ID)
		}
		cursor = page[len(page)-1].ID
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
}
