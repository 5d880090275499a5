package model

// ConfidenceFactors holds each bounded sub-score of a confidence result.
type ConfidenceFactors struct {
	DataSourceScore   int `json:"dataSourceScore"`
	RecencyScore      int `json:"recencyScore"`
	VerificationScore int `json:"verificationScore"`
	AgreementScore    int `json:"agreementScore"`
}

// ConfidenceMetadata describes freshness and the reasoning behind a score.
type ConfidenceMetadata struct {
	DaysUntilStale          int    `json:"daysUntilStale"`
	IsStale                 bool   `json:"isStale"`
	RecommendReVerification bool   `json:"recommendReVerification"`
	DaysSinceVerification   *int   `json:"daysSinceVerification"`
	FreshnessThreshold      int    `json:"freshnessThreshold"`
	ResearchNote            string `json:"researchNote"`
	Explanation             string `json:"explanation"`
}

// ConfidenceBreakdown is the full output of the confidence scoring engine.
type ConfidenceBreakdown struct {
	Score    int                `json:"score"`
	Level    ConfidenceLevel    `json:"level"`
	Factors  ConfidenceFactors  `json:"factors"`
	Metadata ConfidenceMetadata `json:"metadata"`
}
