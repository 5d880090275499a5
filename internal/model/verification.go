package model

import "time"

// VerificationRecord is one anonymous crowd submission about a provider-plan pair.
// It is never linked to a user account.
type VerificationRecord struct {
	ID                 string     `json:"id"`
	ProviderNPI        string     `json:"providerNpi"`
	PlanID             string     `json:"planId"`
	LocationID         *int64     `json:"locationId,omitempty"`
	AcceptsInsurance   bool       `json:"acceptsInsurance"`
	AcceptsNewPatients *bool      `json:"acceptsNewPatients,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	EvidenceURL        string     `json:"evidenceUrl,omitempty"`
	SourceIPHash       string     `json:"-"`
	ContactHash        string     `json:"-"`
	Upvotes            int        `json:"upvotes"`
	Downvotes          int        `json:"downvotes"`
	IsApproved         *bool      `json:"-"`
	ReviewedAt         *time.Time `json:"-"`
	ReviewedBy         string     `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	ExpiresAt          time.Time  `json:"expiresAt"`
}

// Expired reports whether the record's TTL has lapsed at now.
func (v *VerificationRecord) Expired(now time.Time) bool {
	return !v.ExpiresAt.After(now)
}

// Summary strips submitter-identifying fields for API responses.
func (v *VerificationRecord) Summary() VerificationSummary {
	return VerificationSummary{
		ID:                 v.ID,
		ProviderNPI:        v.ProviderNPI,
		PlanID:             v.PlanID,
		LocationID:         v.LocationID,
		AcceptsInsurance:   v.AcceptsInsurance,
		AcceptsNewPatients: v.AcceptsNewPatients,
		Notes:              v.Notes,
		EvidenceURL:        v.EvidenceURL,
		Upvotes:            v.Upvotes,
		Downvotes:          v.Downvotes,
		CreatedAt:          v.CreatedAt,
		ExpiresAt:          v.ExpiresAt,
	}
}

// VerificationSummary is the public view of a verification.
type VerificationSummary struct {
	ID                 string    `json:"id"`
	ProviderNPI        string    `json:"providerNpi"`
	PlanID             string    `json:"planId"`
	LocationID         *int64    `json:"locationId,omitempty"`
	AcceptsInsurance   bool      `json:"acceptsInsurance"`
	AcceptsNewPatients *bool     `json:"acceptsNewPatients,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	EvidenceURL        string    `json:"evidenceUrl,omitempty"`
	Upvotes            int       `json:"upvotes"`
	Downvotes          int       `json:"downvotes"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

// VerificationRequest is the API request body for submitting a verification.
type VerificationRequest struct {
	NPI                string `json:"npi"`
	PlanID             string `json:"planId"`
	LocationID         *int64 `json:"locationId,omitempty"`
	AcceptsInsurance   *bool  `json:"acceptsInsurance"`
	AcceptsNewPatients *bool  `json:"acceptsNewPatients,omitempty"`
	Notes              string `json:"notes,omitempty"`
	EvidenceURL        string `json:"evidenceUrl,omitempty"`
	SubmittedBy        string `json:"submittedBy,omitempty"`
	CaptchaToken       string `json:"captchaToken,omitempty"`
	Website            string `json:"website,omitempty"`
}

// VerificationInput is a validated submission handed to the verification service.
type VerificationInput struct {
	ProviderNPI        string
	PlanID             string
	LocationID         *int64
	AcceptsInsurance   bool
	AcceptsNewPatients *bool
	Notes              string
	EvidenceURL        string
	Contact            string
	SourceIP           string
}

// VerificationResponse is the API response after a successful submission.
type VerificationResponse struct {
	Verification VerificationSummary  `json:"verification"`
	Acceptance   *AcceptanceAggregate `json:"acceptance"`
	Confidence   *ConfidenceBreakdown `json:"confidence"`
	Message      string               `json:"message"`
}
