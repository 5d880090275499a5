package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
)

// Consensus thresholds for a definitive acceptance status.
const (
	MinVerificationsForConsensus = 3
	MinConfidenceForConsensus    = 60
)

// decideStatus applies the consensus rule. A definitive status needs enough
// verifications, enough confidence, and a clear 2:1 majority.
func decideStatus(t model.Tally, score int) model.AcceptanceStatus {
	n := t.Count()
	if n == 0 {
		return model.StatusUnknown
	}
	if n < MinVerificationsForConsensus || score < MinConfidenceForConsensus {
		return model.StatusPending
	}
	majority, minority := max(t.Accepted, t.Rejected), min(t.Accepted, t.Rejected)
	if majority < 2*minority {
		return model.StatusPending
	}
	if t.Accepted > t.Rejected {
		return model.StatusAccepted
	}
	return model.StatusNotAccepted
}

// applyTally rewrites a's derived fields from tally. It does not persist.
func applyTally(scorer *ConfidenceService, a *model.AcceptanceAggregate, tally model.Tally, specialty string, ttl time.Duration, now time.Time) model.ConfidenceBreakdown {
	source := model.SourceCrowdsource
	if a.DataSource != nil {
		source = *a.DataSource
	}
	up, down := tally.AgreementVotes()

	br := scorer.Score(ConfidenceInput{
		DataSource:            source,
		DaysSinceVerification: DaysSince(tally.LastVerifiedAt, now),
		Specialty:             specialty,
		VerificationCount:     tally.Count(),
		Upvotes:               up,
		Downvotes:             down,
	})

	a.ConfidenceScore = br.Score
	a.ConfidenceLevel = br.Level
	a.VerificationCount = tally.Count()
	a.Status = decideStatus(tally, br.Score)
	a.LastVerified = tally.LastVerifiedAt
	a.ExpiresAt = nil
	if tally.LastVerifiedAt != nil {
		exp := tally.LastVerifiedAt.Add(ttl)
		a.ExpiresAt = &exp
	}
	return br
}

// recomputeAggregate re-tallies a's pair inside tx and applies the result.
func recomputeAggregate(ctx context.Context, tx repository.Tx, scorer *ConfidenceService, a *model.AcceptanceAggregate, ttl time.Duration, now time.Time) (model.ConfidenceBreakdown, error) {
	specialty, err := tx.ProviderSpecialty(ctx, a.ProviderNPI)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.ConfidenceBreakdown{}, fmt.Errorf("load specialty: %w", err)
	}
	tally, err := tx.TallyPair(ctx, a.ProviderNPI, a.PlanID, now)
	if err != nil {
		return model.ConfidenceBreakdown{}, fmt.Errorf("tally pair: %w", err)
	}
	return applyTally(scorer, a, tally, specialty, ttl, now), nil
}

// derivedChanged reports whether recomputation changed anything worth writing.
func derivedChanged(before, after *model.AcceptanceAggregate) bool {
	return before.ConfidenceScore != after.ConfidenceScore ||
		before.ConfidenceLevel != after.ConfidenceLevel ||
		before.Status != after.Status ||
		before.VerificationCount != after.VerificationCount
}

func recordTransition(from, to model.AcceptanceStatus) {
	if from != to {
		metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	}
}
