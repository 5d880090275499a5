package model

import "time"

// VoteDirection is an up or down vote on a verification.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Valid reports whether d is a known direction.
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// VoteRecord is one voter's vote on a verification. At most one exists per
// (verification, voter IP).
type VoteRecord struct {
	ID             int64         `json:"id"`
	VerificationID string        `json:"verificationId"`
	SourceIPHash   string        `json:"-"`
	Direction      VoteDirection `json:"vote"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// VoteRequest is the API request body for voting on a verification.
type VoteRequest struct {
	Vote         string `json:"vote"`
	CaptchaToken string `json:"captchaToken,omitempty"`
	Website      string `json:"website,omitempty"`
}

// VoteResponse is the API response after a vote is recorded.
type VoteResponse struct {
	VerificationID string               `json:"verificationId"`
	Upvotes        int                  `json:"upvotes"`
	Downvotes      int                  `json:"downvotes"`
	NetVotes       int                  `json:"netVotes"`
	VoteChanged    bool                 `json:"voteChanged"`
	Acceptance     *AcceptanceAggregate `json:"acceptance,omitempty"`
	Message        string               `json:"message"`
}
