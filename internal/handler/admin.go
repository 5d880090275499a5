package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/middleware"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/service"
)

// AdminHandler exposes the batch jobs for on-demand runs. Routes are
// protected by middleware.AdminAuth.
type AdminHandler struct {
	decay   *service.DecayWorker
	cleanup *service.CleanupWorker
}

func NewAdminHandler(decay *service.DecayWorker, cleanup *service.CleanupWorker) *AdminHandler {
	return &AdminHandler{decay: decay, cleanup: cleanup}
}

// RecalculateConfidence handles POST /api/v1/admin/recalculate-confidence?dryRun=&limit=
func (h *AdminHandler) RecalculateConfidence(c fiber.Ctx) error {
	stats, err := h.decay.Run(c.Context(), service.DecayOptions{
		DryRun: fiber.Query[bool](c, "dryRun"),
		Limit:  max(fiber.Query[int](c, "limit"), 0),
	})
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, stats)
}

// CleanupExpired handles POST /api/v1/admin/cleanup-expired?dryRun=
func (h *AdminHandler) CleanupExpired(c fiber.Ctx) error {
	stats, err := h.cleanup.Run(c.Context(), fiber.Query[bool](c, "dryRun"))
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, stats)
}
