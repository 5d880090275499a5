package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/repository"
)

// SybilChecker rejects repeat submissions for the same provider-plan pair
// from one IP or one contact address within the prevention window.
type SybilChecker struct {
	window time.Duration
}

func NewSybilChecker(window time.Duration) *SybilChecker {
	return &SybilChecker{window: window}
}

// Check must run in the same transaction as the insert it guards, after the
// pair's aggregate row is locked.
func (s *SybilChecker) Check(ctx context.Context, tx repository.Tx, npi, planID, ipHash, contactHash string, now time.Time) error {
	match, err := tx.HasRecentSubmission(ctx, npi, planID, ipHash, contactHash, now.Add(-s.window))
	if err != nil {
		return fmt.Errorf("sybil check: %w", err)
	}

	days := int(s.window / (24 * time.Hour))
	switch {
	case match.SameIP:
		return apperror.Conflict("DUPLICATE_VERIFICATION",
			fmt.Sprintf("You have already submitted a verification for this provider and plan. Please wait %d days between verifications.", days))
	case match.SameContact:
		return apperror.Conflict("DUPLICATE_VERIFICATION",
			fmt.Sprintf("This email has already been used to verify this provider and plan. Please wait %d days between verifications.", days))
	}
	return nil
}
