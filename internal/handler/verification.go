package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/middleware"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/service"
)

var errInvalidBody = apperror.Validation("INVALID_BODY", "Invalid request body")

type VerificationHandler struct {
	svc *service.VerificationService
}

func NewVerificationHandler(svc *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// Submit handles POST /api/v1/verify
func (h *VerificationHandler) Submit(c fiber.Ctx) error {
	var req model.VerificationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errInvalidBody
	}
	if req.AcceptsInsurance == nil {
		return apperror.Validation("VALIDATION_ERROR", "acceptsInsurance is required").
			WithDetails(map[string]string{"field": "acceptsInsurance"})
	}

	resp, err := h.svc.SubmitVerification(c.Context(), model.VerificationInput{
		ProviderNPI:        req.NPI,
		PlanID:             req.PlanID,
		LocationID:         req.LocationID,
		AcceptsInsurance:   *req.AcceptsInsurance,
		AcceptsNewPatients: req.AcceptsNewPatients,
		Notes:              req.Notes,
		EvidenceURL:        req.EvidenceURL,
		Contact:            req.SubmittedBy,
		SourceIP:           c.IP(),
	})
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusCreated, resp)
}

// Vote handles POST /api/v1/verify/:verificationId/vote
func (h *VerificationHandler) Vote(c fiber.Ctx) error {
	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errInvalidBody
	}

	resp, err := h.svc.VoteOnVerification(c.Context(), c.Params("verificationId"), req.Vote, c.IP())
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, resp)
}

// Aggregate handles GET /api/v1/verify/:npi/:planId
func (h *VerificationHandler) Aggregate(c fiber.Ctx) error {
	resp, err := h.svc.GetAggregate(c.Context(), c.Params("npi"), c.Params("planId"))
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, resp)
}

// Recent handles GET /api/v1/verify/recent?limit=
func (h *VerificationHandler) Recent(c fiber.Ctx) error {
	recent, err := h.svc.RecentVerifications(c.Context(), fiber.Query[int](c, "limit", 20))
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, fiber.Map{
		"verifications": recent,
		"count":         len(recent),
	})
}

// Stats handles GET /api/v1/verify/stats
func (h *VerificationHandler) Stats(c fiber.Ctx) error {
	stats, err := h.svc.Stats(c.Context())
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, stats)
}

// FakeSubmission is the honeypot payload for the submit route. It has the
// shape of a real response but nothing is stored.
func FakeSubmission(c fiber.Ctx) any {
	var req model.VerificationRequest
	_ = c.Bind().JSON(&req)
	now := time.Now().UTC()
	return fiber.Map{
		"verification": fiber.Map{
			"id":               uuid.NewString(),
			"providerNpi":      req.NPI,
			"planId":           req.PlanID,
			"acceptsInsurance": req.AcceptsInsurance != nil && *req.AcceptsInsurance,
			"upvotes":          0,
			"downvotes":        0,
			"createdAt":        now,
		},
		"message": "Verification submitted successfully",
	}
}

// FakeVote is the honeypot payload for the vote route.
func FakeVote(c fiber.Ctx) any {
	return fiber.Map{
		"verificationId": c.Params("verificationId"),
		"upvotes":        1,
		"downvotes":      0,
		"netVotes":       1,
		"voteChanged":    false,
		"message":        "Vote recorded",
	}
}
