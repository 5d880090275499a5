package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/ratelimit"
)

// ClientKey identifies the caller for rate limiting. It relies on the app's
// proxy header configuration for c.IP().
func ClientKey(c fiber.Ctx) string {
	return c.IP()
}

// RateLimit enforces the limiter's budget for class on every request.
func RateLimit(l *ratelimit.Limiter, class ratelimit.Class) fiber.Handler {
	return func(c fiber.Ctx) error {
		d := l.Admit(c.Context(), ClientKey(c), class)
		setRateLimitHeaders(c, d)

		if !d.Allowed {
			metrics.RateLimitRejections.WithLabelValues(string(class)).Inc()
			retry := retrySeconds(d.RetryAfter)
			c.Set("Retry-After", strconv.Itoa(retry))
			return apperror.RateLimited(fmt.Sprintf("Too many requests. Try again in %d seconds.", retry)).
				WithDetails(fiber.Map{"retryAfter": retry})
		}
		return c.Next()
	}
}

func setRateLimitHeaders(c fiber.Ctx, d ratelimit.Decision) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// retrySeconds rounds up so clients never retry early.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
