package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

// SpecialtyCategory groups specialties that share a freshness threshold.
type SpecialtyCategory string

const (
	SpecialtyMentalHealth  SpecialtyCategory = "MENTAL_HEALTH"
	SpecialtyPrimaryCare   SpecialtyCategory = "PRIMARY_CARE"
	SpecialtySpecialist    SpecialtyCategory = "SPECIALIST"
	SpecialtyHospitalBased SpecialtyCategory = "HOSPITAL_BASED"
	SpecialtyOther         SpecialtyCategory = "OTHER"
)

// Freshness thresholds in days. Network participation changes fastest for
// mental health providers and slowest for hospital-based ones.
var freshnessThresholds = map[SpecialtyCategory]int{
	SpecialtyMentalHealth:  30,
	SpecialtyPrimaryCare:   60,
	SpecialtySpecialist:    60,
	SpecialtyHospitalBased: 90,
	SpecialtyOther:         60,
}

var researchNotes = map[SpecialtyCategory]string{
	SpecialtyMentalHealth:  "Mental health providers change network participation most often; about half of listed providers are not actually reachable in-network.",
	SpecialtyPrimaryCare:   "Primary care network data goes stale at roughly 12% per year; re-verify every two months.",
	SpecialtySpecialist:    "Specialist network data goes stale at roughly 12% per year; re-verify every two months.",
	SpecialtyHospitalBased: "Hospital-based providers follow facility contracts, which change less often; re-verify every three months.",
	SpecialtyOther:         "Provider network data goes stale at roughly 12% per year; re-verify every two months.",
}

// Keyword order matters: the first category with a match wins.
var specialtyKeywords = []struct {
	category SpecialtyCategory
	keywords []string
}{
	{SpecialtyMentalHealth, []string{"psychiat", "psycholog", "mental", "behavioral", "counsel", "psychotherap", "marriage", "social work", "addiction", "substance"}},
	{SpecialtyHospitalBased, []string{"hospital", "emergency", "anesthes", "radiolog", "patholog", "critical care", "intensiv", "neonat"}},
	{SpecialtyPrimaryCare, []string{"family", "internal medicine", "general practice", "primary care", "pediatric", "geriatric"}},
}

// CategorizeSpecialty maps free-text specialty to its category. Unmatched
// non-empty specialties are SPECIALIST; empty ones are OTHER.
func CategorizeSpecialty(specialty string) SpecialtyCategory {
	s := strings.ToLower(strings.TrimSpace(specialty))
	if s == "" {
		return SpecialtyOther
	}
	for _, group := range specialtyKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(s, kw) {
				return group.category
			}
		}
	}
	return SpecialtySpecialist
}

// ConfidenceInput is everything the score depends on.
type ConfidenceInput struct {
	DataSource model.DataSource
	// DaysSinceVerification is nil when the pair was never verified.
	DaysSinceVerification *int
	Specialty             string
	VerificationCount     int
	Upvotes               int
	Downvotes             int
}

// ConfidenceService computes confidence scores. It has no dependencies and
// is safe for concurrent use.
type ConfidenceService struct{}

func NewConfidenceService() *ConfidenceService {
	return &ConfidenceService{}
}

// DaysSince returns whole days elapsed from last to now, or nil if last is nil.
func DaysSince(last *time.Time, now time.Time) *int {
	if last == nil {
		return nil
	}
	d := int(now.Sub(*last) / (24 * time.Hour))
	if d < 0 {
		d = 0
	}
	return &d
}

// Score combines the four factors into a 0-100 score and level.
func (s *ConfidenceService) Score(in ConfidenceInput) model.ConfidenceBreakdown {
	category := CategorizeSpecialty(in.Specialty)
	threshold := freshnessThresholds[category]

	factors := model.ConfidenceFactors{
		DataSourceScore:   dataSourceScore(in.DataSource),
		RecencyScore:      recencyScore(in.DaysSinceVerification, threshold),
		VerificationScore: verificationScore(in.VerificationCount),
		AgreementScore:    agreementScore(in.Upvotes, in.Downvotes),
	}
	score := min(100, factors.DataSourceScore+factors.RecencyScore+factors.VerificationScore+factors.AgreementScore)
	level := confidenceLevel(score, in.VerificationCount)

	meta := model.ConfidenceMetadata{
		DaysSinceVerification: in.DaysSinceVerification,
		FreshnessThreshold:    threshold,
		ResearchNote:          researchNotes[category],
	}
	if in.DaysSinceVerification == nil {
		meta.IsStale = true
		meta.RecommendReVerification = true
	} else {
		days := *in.DaysSinceVerification
		meta.DaysUntilStale = max(0, threshold-days)
		meta.IsStale = days > threshold
		meta.RecommendReVerification = meta.IsStale || float64(days) >= 0.8*float64(threshold)
	}
	meta.Explanation = explain(in, factors, threshold, level)

	return model.ConfidenceBreakdown{
		Score:    score,
		Level:    level,
		Factors:  factors,
		Metadata: meta,
	}
}

func dataSourceScore(source model.DataSource) int {
	switch source {
	case model.SourceCMSNPPES, model.SourceCMSPlanFinder, model.SourceCMSData:
		return 25
	case model.SourceCarrierAPI, model.SourceCarrierData, model.SourceProviderPortal:
		return 20
	case model.SourceCrowdsource, model.SourcePhoneCall:
		return 15
	default:
		return 10
	}
}

func recencyScore(days *int, threshold int) int {
	if days == nil {
		return 0
	}
	d := float64(*days)
	t := float64(threshold)
	switch {
	case d <= math.Min(30, 0.5*t):
		return 30
	case d <= t:
		return 20
	case d <= 1.5*t:
		return 10
	case d <= 180:
		return 5
	default:
		return 0
	}
}

func verificationScore(count int) int {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return 10
	case count == 2:
		return 15
	default:
		return 25
	}
}

func agreementScore(up, down int) int {
	total := up + down
	if total <= 0 {
		return 0
	}
	ratio := float64(up) / float64(total)
	switch {
	case ratio >= 1:
		return 20
	case ratio >= 0.8:
		return 15
	case ratio >= 0.6:
		return 10
	case ratio >= 0.4:
		return 5
	default:
		return 0
	}
}

// confidenceLevel bands the score. One or two verifications never rate
// above MEDIUM.
func confidenceLevel(score, count int) model.ConfidenceLevel {
	var level model.ConfidenceLevel
	switch {
	case score >= 91:
		level = model.LevelVeryHigh
	case score >= 76:
		level = model.LevelHigh
	case score >= 51:
		level = model.LevelMedium
	case score >= 26:
		level = model.LevelLow
	default:
		level = model.LevelVeryLow
	}
	if (count == 1 || count == 2) && (level == model.LevelVeryHigh || level == model.LevelHigh) {
		return model.LevelMedium
	}
	return level
}

func sourceLabel(source model.DataSource) string {
	switch dataSourceScore(source) {
	case 25:
		return "official CMS data"
	case 20:
		return "carrier or provider-reported data"
	case 15:
		return "community verification"
	default:
		return "automated or unknown source"
	}
}

func explain(in ConfidenceInput, f model.ConfidenceFactors, threshold int, level model.ConfidenceLevel) string {
	parts := make([]string, 0, 5)
	parts = append(parts, fmt.Sprintf("Based on %s (%d/25).", sourceLabel(in.DataSource), f.DataSourceScore))

	if in.DaysSinceVerification == nil {
		parts = append(parts, "Never verified (0/30).")
	} else {
		parts = append(parts, fmt.Sprintf("Last verified %d days ago against a %d-day freshness window (%d/30).",
			*in.DaysSinceVerification, threshold, f.RecencyScore))
	}

	switch n := in.VerificationCount; {
	case n == 0:
		parts = append(parts, "No community verifications yet (0/25).")
	case n < 3:
		parts = append(parts, fmt.Sprintf("%d verification(s); 3 are needed for high confidence (%d/25).", n, f.VerificationScore))
	default:
		parts = append(parts, fmt.Sprintf("%d verifications (%d/25).", n, f.VerificationScore))
	}

	if total := in.Upvotes + in.Downvotes; total == 0 {
		parts = append(parts, "No agreement signal yet (0/20).")
	} else {
		pct := int(math.Round(100 * float64(in.Upvotes) / float64(total)))
		parts = append(parts, fmt.Sprintf("%d%% agreement across %d signals (%d/20).", pct, total, f.AgreementScore))
	}

	parts = append(parts, fmt.Sprintf("Confidence is %s.", strings.ReplaceAll(strings.ToLower(string(level)), "_", " ")))
	return strings.Join(parts, " ")
}
