package service

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

// Field limits matching the verification_logs schema, in characters.
const (
	MaxPlanIDLen      = 50
	MaxNoteLen        = 1000
	MaxEvidenceURLLen = 500
	MaxContactLen     = 200
)

var (
	npiRe    = regexp.MustCompile(`^[0-9]{10}$`)
	planIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

func invalid(field, message string) *apperror.Error {
	return apperror.Validation("VALIDATION_ERROR", message).
		WithDetails(map[string]string{"field": field})
}

// ValidateNPI checks a National Provider Identifier is exactly 10 digits.
func ValidateNPI(npi string) (string, error) {
	npi = strings.TrimSpace(npi)
	if npi == "" {
		return "", invalid("npi", "npi is required")
	}
	if !npiRe.MatchString(npi) {
		return "", invalid("npi", "npi must be exactly 10 digits")
	}
	return npi, nil
}

// ValidatePlanID checks a plan identifier is 1-50 URL-safe characters.
func ValidatePlanID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid("planId", "planId is required")
	}
	if len(id) > MaxPlanIDLen {
		return "", invalid("planId", "planId must be at most 50 characters")
	}
	if !planIDRe.MatchString(id) {
		return "", invalid("planId", "planId contains invalid characters")
	}
	return id, nil
}

// ValidateVerificationID checks a verification ID is a UUID and returns its
// canonical form.
func ValidateVerificationID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", invalid("verificationId", "verificationId must be a valid UUID")
	}
	return parsed.String(), nil
}

// ValidateVoteDirection parses "up" or "down".
func ValidateVoteDirection(vote string) (model.VoteDirection, error) {
	d := model.VoteDirection(strings.ToLower(strings.TrimSpace(vote)))
	if !d.Valid() {
		return "", invalid("vote", "vote must be 'up' or 'down'")
	}
	return d, nil
}

// validateSubmission normalizes in and rejects the first invalid field.
func validateSubmission(in model.VerificationInput) (model.VerificationInput, error) {
	var err error
	if in.ProviderNPI, err = ValidateNPI(in.ProviderNPI); err != nil {
		return in, err
	}
	if in.PlanID, err = ValidatePlanID(in.PlanID); err != nil {
		return in, err
	}
	if in.LocationID != nil && *in.LocationID <= 0 {
		return in, invalid("locationId", "locationId must be a positive integer")
	}

	in.Notes = strings.TrimSpace(in.Notes)
	if utf8.RuneCountInString(in.Notes) > MaxNoteLen {
		return in, invalid("notes", "notes must be at most 1000 characters")
	}

	in.EvidenceURL = strings.TrimSpace(in.EvidenceURL)
	if in.EvidenceURL != "" {
		if utf8.RuneCountInString(in.EvidenceURL) > MaxEvidenceURLLen {
			return in, invalid("evidenceUrl", "evidenceUrl must be at most 500 characters")
		}
		u, perr := url.ParseRequestURI(in.EvidenceURL)
		if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return in, invalid("evidenceUrl", "evidenceUrl must be an absolute http or https URL")
		}
	}

	in.Contact = strings.TrimSpace(in.Contact)
	if in.Contact != "" {
		if utf8.RuneCountInString(in.Contact) > MaxContactLen {
			return in, invalid("submittedBy", "submittedBy must be at most 200 characters")
		}
		addr, perr := mail.ParseAddress(in.Contact)
		if perr != nil || addr.Address != in.Contact {
			return in, invalid("submittedBy", "submittedBy must be a valid email address")
		}
	}
	return in, nil
}
