package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/pkg/hash"
)

const (
	recentForPairLimit = 5
	maxRecentLimit     = 50
)

// VerificationService handles crowd submissions and votes, and keeps each
// pair's acceptance aggregate consistent with them.
type VerificationService struct {
	store  repository.Store
	scorer *ConfidenceService
	sybil  *SybilChecker
	cache  *CacheService
	clock  clock.Clock
	salt   string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewVerificationService(
	store repository.Store,
	scorer *ConfidenceService,
	cache *CacheService,
	cfg config.VerificationConfig,
	salt string,
	clk clock.Clock,
	log zerolog.Logger,
) *VerificationService {
	return &VerificationService{
		store:  store,
		scorer: scorer,
		sybil:  NewSybilChecker(cfg.SybilWindow),
		cache:  cache,
		clock:  clk,
		salt:   salt,
		ttl:    cfg.TTL,
		log:    log.With().Str("component", "verification").Logger(),
	}
}

// SubmitVerification records one anonymous verification and recomputes the
// pair's aggregate in the same transaction.
func (s *VerificationService) SubmitVerification(ctx context.Context, in model.VerificationInput) (*model.VerificationResponse, error) {
	in, err := validateSubmission(in)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	now := s.clock.Now().UTC()
	record := &model.VerificationRecord{
		ID:                 uuid.NewString(),
		ProviderNPI:        in.ProviderNPI,
		PlanID:             in.PlanID,
		LocationID:         in.LocationID,
		AcceptsInsurance:   in.AcceptsInsurance,
		AcceptsNewPatients: in.AcceptsNewPatients,
		Notes:              in.Notes,
		EvidenceURL:        in.EvidenceURL,
		SourceIPHash:       hash.HashIP(in.SourceIP, s.salt),
		ContactHash:        hash.HashContact(in.Contact, s.salt),
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.ttl),
	}

	var (
		agg       *model.AcceptanceAggregate
		breakdown model.ConfidenceBreakdown
		previous  model.AcceptanceStatus
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if ok, err := tx.ProviderExists(ctx, in.ProviderNPI); err != nil {
			return fmt.Errorf("check provider: %w", err)
		} else if !ok {
			return apperror.NotFound("PROVIDER_NOT_FOUND", "Provider not found")
		}
		if ok, err := tx.PlanExists(ctx, in.PlanID); err != nil {
			return fmt.Errorf("check plan: %w", err)
		} else if !ok {
			return apperror.NotFound("PLAN_NOT_FOUND", "Insurance plan not found")
		}

		// Locking the aggregate serializes submissions for the pair, which
		// makes the Sybil check and the insert below atomic.
		a, err := tx.LockAcceptance(ctx, in.ProviderNPI, in.PlanID, now)
		if err != nil {
			return fmt.Errorf("lock acceptance: %w", err)
		}
		previous = a.Status

		if err := s.sybil.Check(ctx, tx, in.ProviderNPI, in.PlanID, record.SourceIPHash, record.ContactHash, now); err != nil {
			return err
		}
		if err := tx.InsertVerification(ctx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Conflict("DUPLICATE_VERIFICATION", "This verification was already recorded")
			}
			return fmt.Errorf("insert verification: %w", err)
		}

		if a.DataSource == nil {
			ds := model.SourceCrowdsource
			a.DataSource = &ds
		}
		if a.LocationID == nil {
			a.LocationID = in.LocationID
		}
		breakdown, err = recomputeAggregate(ctx, tx, s.scorer, a, s.ttl, now)
		if err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := tx.UpdateAcceptance(ctx, a); err != nil {
			return fmt.Errorf("update acceptance: %w", err)
		}
		agg = a
		return nil
	})
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	metrics.VerificationsTotal.WithLabelValues("recorded").Inc()
	recordTransition(previous, agg.Status)
	s.invalidate(in.ProviderNPI, in.PlanID)

	s.log.Info().
		Str("verification_id", record.ID).
		Str("status", string(agg.Status)).
		Int("score", agg.ConfidenceScore).
		Msg("verification recorded")

	return &model.VerificationResponse{
		Verification: record.Summary(),
		Acceptance:   agg,
		Confidence:   &breakdown,
		Message:      "Verification submitted successfully",
	}, nil
}

// GetAggregate returns the pair's acceptance state with a confidence
// breakdown as of now and its most recent live verifications.
func (s *VerificationService) GetAggregate(ctx context.Context, npi, planID string) (*model.AggregateResponse, error) {
	npi, err := ValidateNPI(npi)
	if err != nil {
		return nil, err
	}
	if planID, err = ValidatePlanID(planID); err != nil {
		return nil, err
	}

	if cached, err := s.cache.GetAggregate(ctx, npi, planID); err != nil {
		s.log.Warn().Err(err).Msg("cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	a, err := s.store.GetAcceptance(ctx, npi, planID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("ACCEPTANCE_NOT_FOUND", "No verification data for this provider and plan")
	}
	if err != nil {
		return nil, fmt.Errorf("get acceptance: %w", err)
	}

	now := s.clock.Now().UTC()
	specialty, err := s.store.ProviderSpecialty(ctx, npi)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load specialty: %w", err)
	}
	tally, err := s.store.TallyPair(ctx, npi, planID, now)
	if err != nil {
		return nil, fmt.Errorf("tally pair: %w", err)
	}
	current := *a
	breakdown := applyTally(s.scorer, &current, tally, specialty, s.ttl, now)

	recent, err := s.store.RecentForPair(ctx, npi, planID, now, recentForPairLimit)
	if err != nil {
		return nil, fmt.Errorf("recent verifications: %w", err)
	}

	resp := &model.AggregateResponse{
		ProviderNPI:         a.ProviderNPI,
		PlanID:              a.PlanID,
		AcceptanceStatus:    a.Status,
		ConfidenceScore:     a.ConfidenceScore,
		ConfidenceLevel:     a.ConfidenceLevel,
		VerificationCount:   a.VerificationCount,
		LastVerified:        a.LastVerified,
		ExpiresAt:           a.ExpiresAt,
		Confidence:          &breakdown,
		RecentVerifications: summaries(recent),
	}

	bestEffort(s.log, "cache aggregate", func(ctx context.Context) error {
		return s.cache.SetAggregate(ctx, npi, planID, resp)
	})
	return resp, nil
}

// RecentVerifications lists the newest live verifications across all pairs.
func (s *VerificationService) RecentVerifications(ctx context.Context, limit int) ([]model.VerificationSummary, error) {
	if limit <= 0 || limit > maxRecentLimit {
		limit = 20
	}
	recent, err := s.store.RecentVerifications(ctx, s.clock.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent verifications: %w", err)
	}
	return summaries(recent), nil
}

// Stats reports verification and vote counts.
func (s *VerificationService) Stats(ctx context.Context) (model.StatsResponse, error) {
	stats, err := s.store.Stats(ctx, s.clock.Now().UTC())
	if err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func (s *VerificationService) invalidate(npi, planID string) {
	bestEffort(s.log, "invalidate aggregate cache", func(ctx context.Context) error {
		return s.cache.InvalidateAggregate(ctx, npi, planID)
	})
}

func summaries(records []model.VerificationRecord) []model.VerificationSummary {
	out := make([]model.VerificationSummary, 0, len(records))
	for i := range records {
		out = append(out, records[i].Summary())
	}
	return out
}

// resultLabel maps an error to a low-cardinality metric label.
func resultLabel(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return "invalid"
	case apperror.KindNotFound:
		return "not_found"
	case apperror.KindConflict:
		return "conflict"
	default:
		return "error"
	}
}
