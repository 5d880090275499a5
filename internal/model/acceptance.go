package model

import "time"

// AcceptanceStatus is the public-facing acceptance state of a provider-plan pair.
type AcceptanceStatus string

const (
	StatusAccepted    AcceptanceStatus = "ACCEPTED"
	StatusNotAccepted AcceptanceStatus = "NOT_ACCEPTED"
	StatusPending     AcceptanceStatus = "PENDING"
	StatusUnknown     AcceptanceStatus = "UNKNOWN"
)

// ConfidenceLevel is the discrete band derived from a confidence score.
type ConfidenceLevel string

const (
	LevelVeryHigh ConfidenceLevel = "VERY_HIGH"
	LevelHigh     ConfidenceLevel = "HIGH"
	LevelMedium   ConfidenceLevel = "MEDIUM"
	LevelLow      ConfidenceLevel = "LOW"
	LevelVeryLow  ConfidenceLevel = "VERY_LOW"
)

// DataSource identifies where an acceptance record's data originated.
type DataSource string

const (
	SourceCMSNPPES        DataSource = "CMS_NPPES"
	SourceCMSPlanFinder   DataSource = "CMS_PLAN_FINDER"
	SourceCMSData         DataSource = "CMS_DATA"
	SourceCarrierAPI      DataSource = "CARRIER_API"
	SourceCarrierData     DataSource = "CARRIER_DATA"
	SourceProviderPortal  DataSource = "PROVIDER_PORTAL"
	SourceCrowdsource     DataSource = "CROWDSOURCE"
	SourcePhoneCall       DataSource = "PHONE_CALL"
	SourceAutomated       DataSource = "AUTOMATED"
	SourceNetworkCrossref DataSource = "NETWORK_CROSSREF"
)

// AcceptanceAggregate is the durable trust state for one provider-plan pair.
type AcceptanceAggregate struct {
	ID                int64            `json:"-"`
	ProviderNPI       string           `json:"providerNpi"`
	PlanID            string           `json:"planId"`
	LocationID        *int64           `json:"locationId,omitempty"`
	Status            AcceptanceStatus `json:"acceptanceStatus"`
	ConfidenceScore   int              `json:"confidenceScore"`
	ConfidenceLevel   ConfidenceLevel  `json:"confidenceLevel"`
	VerificationCount int              `json:"verificationCount"`
	DataSource        *DataSource      `json:"dataSource,omitempty"`
	LastVerified      *time.Time       `json:"lastVerified,omitempty"`
	ExpiresAt         *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt         time.Time        `json:"-"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// PairKey identifies a provider-plan pair.
type PairKey struct {
	ProviderNPI string
	PlanID      string
}

// Tally is the non-expired verification and vote aggregate for a pair.
// Votes are split by the claim of the verification they were cast on.
type Tally struct {
	Accepted        int
	Rejected        int
	AcceptUpvotes   int
	AcceptDownvotes int
	RejectUpvotes   int
	RejectDownvotes int
	LastVerifiedAt  *time.Time
}

// Count returns the number of non-expired verifications in the tally.
func (t Tally) Count() int {
	return t.Accepted + t.Rejected
}

// AgreementVotes returns the agree/disagree inputs for the agreement factor,
// measured against the majority claim (accepting on a tie). Upvotes on
// majority-side verifications and downvotes on minority-side ones agree;
// the reverse disagrees.
func (t Tally) AgreementVotes() (agree, disagree int) {
	if t.Accepted >= t.Rejected {
		return t.Accepted + t.AcceptUpvotes + t.RejectDownvotes,
			t.Rejected + t.AcceptDownvotes + t.RejectUpvotes
	}
	return t.Rejected + t.RejectUpvotes + t.AcceptDownvotes,
		t.Accepted + t.RejectDownvotes + t.AcceptUpvotes
}

// AggregateResponse is the API response for an aggregate-for-pair lookup.
// AcceptanceStatus, ConfidenceScore and ConfidenceLevel are the stored
// aggregate as of its last write or decay run. Confidence is recomputed at
// request time, so its score can sit below the stored one until the next
// decay pass catches up.
type AggregateResponse struct {
	ProviderNPI         string                `json:"providerNpi"`
	PlanID              string                `json:"planId"`
	AcceptanceStatus    AcceptanceStatus      `json:"acceptanceStatus"`
	ConfidenceScore     int                   `json:"confidenceScore"`
	ConfidenceLevel     ConfidenceLevel       `json:"confidenceLevel"`
	VerificationCount   int                   `json:"verificationCount"`
	LastVerified        *time.Time            `json:"lastVerified,omitempty"`
	ExpiresAt           *time.Time            `json:"expiresAt,omitempty"`
	Confidence          *ConfidenceBreakdown  `json:"confidence"`
	RecentVerifications []VerificationSummary `json:"recentVerifications"`
}

// StatsResponse is the API response for verification statistics.
type StatsResponse struct {
	TotalVerifications  int            `json:"totalVerifications"`
	ActiveVerifications int            `json:"activeVerifications"`
	TotalVotes          int            `json:"totalVotes"`
	Last30Days          int            `json:"last30Days"`
	ByStatus            map[string]int `json:"byStatus"`
}
