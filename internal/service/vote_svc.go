package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/pkg/hash"
)

var errVerificationNotFound = apperror.NotFound("VERIFICATION_NOT_FOUND", "Verification not found or expired")

// VoteOnVerification records one vote per voter IP per verification. A vote
// in the opposite direction replaces the earlier one; a repeat is a conflict.
func (s *VerificationService) VoteOnVerification(ctx context.Context, verificationID, vote, voterIP string) (*model.VoteResponse, error) {
	id, err := ValidateVerificationID(verificationID)
	if err != nil {
		return nil, err
	}
	dir, err := ValidateVoteDirection(vote)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	ipHash := hash.HashIP(voterIP, s.salt)

	var (
		resp     = &model.VoteResponse{VerificationID: id}
		previous model.AcceptanceStatus
		pair     model.PairKey
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		v, err := tx.LockVerification(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return errVerificationNotFound
		}
		if err != nil {
			return fmt.Errorf("lock verification: %w", err)
		}
		if v.Expired(now) {
			return errVerificationNotFound
		}
		pair = model.PairKey{ProviderNPI: v.ProviderNPI, PlanID: v.PlanID}

		var dUp, dDown int
		existing, err := tx.GetVote(ctx, id, ipHash)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			rec := &model.VoteRecord{
				VerificationID: id,
				SourceIPHash:   ipHash,
				Direction:      dir,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.InsertVote(ctx, rec); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return alreadyVoted()
				}
				return fmt.Errorf("insert vote: %w", err)
			}
			dUp, dDown = counterDelta(dir, 1)
		case err != nil:
			return fmt.Errorf("get vote: %w", err)
		case existing.Direction == dir:
			return alreadyVoted()
		default:
			if err := tx.UpdateVoteDirection(ctx, existing.ID, dir, now); err != nil {
				return fmt.Errorf("update vote: %w", err)
			}
			up, down := counterDelta(dir, 1)
			oldUp, oldDown := counterDelta(existing.Direction, -1)
			dUp, dDown = up+oldUp, down+oldDown
			resp.VoteChanged = true
		}

		resp.Upvotes, resp.Downvotes, err = tx.AdjustVoteCounts(ctx, id, dUp, dDown)
		if err != nil {
			return fmt.Errorf("adjust vote counts: %w", err)
		}

		a, err := tx.LockAcceptance(ctx, v.ProviderNPI, v.PlanID, now)
		if err != nil {
			return fmt.Errorf("lock acceptance: %w", err)
		}
		previous = a.Status
		if _, err := recomputeAggregate(ctx, tx, s.scorer, a, s.ttl, now); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := tx.UpdateAcceptance(ctx, a); err != nil {
			return fmt.Errorf("update acceptance: %w", err)
		}
		resp.Acceptance = a
		return nil
	})
	if err != nil {
		metrics.VotesTotal.WithLabelValues(string(dir), resultLabel(err)).Inc()
		return nil, err
	}

	metrics.VotesTotal.WithLabelValues(string(dir), "recorded").Inc()
	recordTransition(previous, resp.Acceptance.Status)
	s.invalidate(pair.ProviderNPI, pair.PlanID)

	resp.NetVotes = resp.Upvotes - resp.Downvotes
	resp.Message = "Vote recorded"
	if resp.VoteChanged {
		resp.Message = "Vote changed"
	}
	return resp, nil
}

func alreadyVoted() error {
	return apperror.Conflict("ALREADY_VOTED", "You have already voted on this verification")
}

// counterDelta returns the upvote and downvote adjustments for adding n
// votes in direction dir.
func counterDelta(dir model.VoteDirection, n int) (up, down int) {
	if dir == model.VoteUp {
		return n, 0
	}
	return 0, n
}
