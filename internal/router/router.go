package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/captcha"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/handler"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/middleware"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/ratelimit"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Verification *handler.VerificationHandler
	Admin        *handler.AdminHandler
	Health       *handler.HealthHandler
}

// Gates holds the abuse-gate dependencies shared by the write routes.
type Gates struct {
	Limiter     *ratelimit.Limiter
	Captcha     *captcha.Guard
	AdminSecret string
	CORSOrigins string
}

// NewApp creates the Fiber app with the API's error envelope.
func NewApp(log zerolog.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "ProviderTrust API",
		ServerHeader: "ProviderTrust",
		BodyLimit:    middleware.MaxBodyBytes,
		ErrorHandler: middleware.ErrorHandler(log),
	})
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, g Gates, log zerolog.Logger) {
	// Middleware stack (order matters)
	app.Use(requestid.New())
	app.Use(middleware.NewRequestLogger(log))
	app.Use(recoverer.New())
	app.Use(middleware.NewCORS(g.CORSOrigins))
	app.Use(metrics.Middleware())

	// Probes and scraping sit outside the API and its limits.
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1")

	verify := api.Group("/verify")
	verify.Post("/",
		middleware.RateLimit(g.Limiter, ratelimit.ClassVerify),
		middleware.RequireJSON(),
		middleware.Honeypot(log, fiber.StatusCreated, handler.FakeSubmission),
		middleware.Captcha(g.Captcha),
		h.Verification.Submit,
	)
	verify.Get("/recent", middleware.RateLimit(g.Limiter, ratelimit.ClassDefault), h.Verification.Recent)
	verify.Get("/stats", middleware.RateLimit(g.Limiter, ratelimit.ClassDefault), h.Verification.Stats)
	verify.Post("/:verificationId/vote",
		middleware.RateLimit(g.Limiter, ratelimit.ClassVote),
		middleware.RequireJSON(),
		middleware.Honeypot(log, fiber.StatusOK, handler.FakeVote),
		middleware.Captcha(g.Captcha),
		h.Verification.Vote,
	)
	verify.Get("/:npi/:planId", middleware.RateLimit(g.Limiter, ratelimit.ClassSearch), h.Verification.Aggregate)

	admin := api.Group("/admin", middleware.AdminAuth(g.AdminSecret, log))
	admin.Post("/recalculate-confidence", h.Admin.RecalculateConfidence)
	admin.Post("/cleanup-expired", h.Admin.CleanupExpired)
}
