package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/captcha"
)

const (
	HeaderCaptchaToken     = "X-Captcha-Token"
	HeaderSecurityDegraded = "X-Security-Degraded"
)

// Captcha runs the bot-likelihood gate. The token is read from the
// X-Captcha-Token header or the body's captchaToken field.
func Captcha(g *captcha.Guard) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !g.Enabled() {
			return c.Next()
		}

		token := c.Get(HeaderCaptchaToken)
		if token == "" {
			token = readGateFields(c).CaptchaToken
		}

		res, err := g.Check(c.Context(), token, c.IP(), ClientKey(c))
		if err != nil {
			if apperror.KindOf(err) == apperror.KindRateLimited {
				c.Set("Retry-After", strconv.Itoa(retrySeconds(res.Fallback.RetryAfter)))
			}
			return err
		}
		if res.Degraded {
			c.Set(HeaderSecurityDegraded, "captcha-unavailable")
			c.Set("X-Fallback-RateLimit-Remaining", strconv.Itoa(max(res.Fallback.Remaining, 0)))
		}
		return c.Next()
	}
}
