package captcha

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/ratelimit"
)

// Outcome is the verdict of a bot-likelihood check.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// Result is what the guard decided for one request.
type Result struct {
	Outcome Outcome
	// Degraded is set when the request was admitted without a verdict
	// because the scoring service was unavailable.
	Degraded bool
	Skipped  bool
	Fallback ratelimit.Decision
}

// Guard applies the failure policy around a Verifier.
type Guard struct {
	verifier Verifier
	minScore float64
	failMode string
	fallback *ratelimit.Limiter
	log      zerolog.Logger

	unhealthy atomic.Bool
}

// NewGuard creates a Guard. A nil verifier disables checking. fallback
// budgets requests admitted while the service is unavailable under
// fail-open; it may be nil only when failMode is closed.
func NewGuard(v Verifier, cfg config.CaptchaConfig, fallback *ratelimit.Limiter, log zerolog.Logger) *Guard {
	return &Guard{
		verifier: v,
		minScore: cfg.MinScore,
		failMode: cfg.FailMode,
		fallback: fallback,
		log:      log.With().Str("component", "captcha").Logger(),
	}
}

// Enabled reports whether tokens are checked at all.
func (g *Guard) Enabled() bool { return g.verifier != nil }

// VerifyHuman asks the scoring service about token.
func (g *Guard) VerifyHuman(ctx context.Context, token, remoteIP string) Outcome {
	a, err := g.verifier.Verify(ctx, token, remoteIP)
	if err != nil {
		if g.unhealthy.CompareAndSwap(false, true) {
			g.log.Warn().Err(err).Str("fail_mode", g.failMode).
				Msg("captcha service unavailable")
		}
		return Unavailable
	}
	if g.unhealthy.CompareAndSwap(true, false) {
		g.log.Info().Msg("captcha service recovered")
	}
	if !a.Success || a.Score < g.minScore {
		g.log.Debug().Float64("score", a.Score).Strs("error_codes", a.ErrorCodes).
			Msg("captcha rejected")
		return Rejected
	}
	return Accepted
}

// Check enforces the bot-likelihood gate for one request. clientKey is the
// identity the fallback budget is charged to.
func (g *Guard) Check(ctx context.Context, token, remoteIP, clientKey string) (Result, error) {
	if !g.Enabled() {
		return Result{Outcome: Accepted, Skipped: true}, nil
	}
	if token == "" {
		return Result{Outcome: Rejected}, apperror.Validation("CAPTCHA_REQUIRED", "Captcha token is required")
	}

	outcome := g.VerifyHuman(ctx, token, remoteIP)
	metrics.CaptchaOutcomes.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case Accepted:
		return Result{Outcome: Accepted}, nil
	case Rejected:
		return Result{Outcome: Rejected}, apperror.Validation("CAPTCHA_FAILED", "Request blocked due to suspicious activity")
	}

	if g.failMode == config.FailClosed || g.fallback == nil {
		return Result{Outcome: Unavailable}, apperror.Unavailable("SERVICE_UNAVAILABLE",
			"Security verification temporarily unavailable. Please try again in a few minutes.")
	}

	d := g.fallback.Admit(ctx, clientKey, ratelimit.ClassCaptchaFallback)
	if !d.Allowed {
		retry := int(d.RetryAfter.Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return Result{Outcome: Unavailable, Fallback: d}, apperror.
			RateLimited("Too many requests while security verification is unavailable. Please try again later.").
			WithDetails(map[string]any{"retryAfter": retry})
	}
	return Result{Outcome: Unavailable, Degraded: true, Fallback: d}, nil
}

// IsUnavailable reports whether err came from an unreachable scoring service.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
