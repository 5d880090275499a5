// Package repository persists verifications, votes, and acceptance
// aggregates. PostgresStore is the production implementation; MemoryStore
// backs tests and local runs without a database.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store serves read-only queries and opens transactions for writes.
type Store interface {
	Reader

	// InTx runs fn in one transaction. fn's error rolls the transaction back
	// and is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader holds queries that need no transaction.
type Reader interface {
	GetAcceptance(ctx context.Context, npi, planID string) (*model.AcceptanceAggregate, error)
	ListAcceptancePage(ctx context.Context, afterID int64, limit int) ([]model.AcceptanceAggregate, error)
	RecentForPair(ctx context.Context, npi, planID string, now time.Time, limit int) ([]model.VerificationRecord, error)
	RecentVerifications(ctx context.Context, now time.Time, limit int) ([]model.VerificationRecord, error)
	ProviderSpecialty(ctx context.Context, npi string) (string, error)
	// TallyPair sums the pair's verifications and votes that are still live at now.
	TallyPair(ctx context.Context, npi, planID string, now time.Time) (model.Tally, error)
	Stats(ctx context.Context, now time.Time) (model.StatsResponse, error)
	CountExpired(ctx context.Context, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// SybilMatch reports which submitter identities already verified a pair
// within the prevention window.
type SybilMatch struct {
	SameIP      bool
	SameContact bool
}

// Tx is the write surface. Lock* methods take row locks held until the
// transaction ends; callers lock a verification before its aggregate.
type Tx interface {
	ProviderExists(ctx context.Context, npi string) (bool, error)
	PlanExists(ctx context.Context, planID string) (bool, error)
	ProviderSpecialty(ctx context.Context, npi string) (string, error)

	// LockAcceptance creates the pair's aggregate as UNKNOWN if missing and
	// locks it.
	LockAcceptance(ctx context.Context, npi, planID string, now time.Time) (*model.AcceptanceAggregate, error)
	LockAcceptanceByID(ctx context.Context, id int64) (*model.AcceptanceAggregate, error)
	UpdateAcceptance(ctx context.Context, a *model.AcceptanceAggregate) error

	HasRecentSubmission(ctx context.Context, npi, planID, ipHash, contactHash string, since time.Time) (SybilMatch, error)
	InsertVerification(ctx context.Context, v *model.VerificationRecord) error
	LockVerification(ctx context.Context, id string) (*model.VerificationRecord, error)
	TallyPair(ctx context.Context, npi, planID string, now time.Time) (model.Tally, error)

	GetVote(ctx context.Context, verificationID, ipHash string) (*model.VoteRecord, error)
	InsertVote(ctx context.Context, v *model.VoteRecord) error
	UpdateVoteDirection(ctx context.Context, id int64, dir model.VoteDirection, now time.Time) error
	// AdjustVoteCounts adds dUp and dDown to a verification's counters and
	// returns the new values.
	AdjustVoteCounts(ctx context.Context, verificationID string, dUp, dDown int) (up, down int, err error)
}
