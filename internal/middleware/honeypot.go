package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/logging"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/metrics"
)

// gateFields are the body fields the abuse gate inspects. Handlers decode
// the full body themselves.
type gateFields struct {
	Website      string `json:"website"`
	CaptchaToken string `json:"captchaToken"`
}

func readGateFields(c fiber.Ctx) gateFields {
	var f gateFields
	_ = c.App().Config().JSONDecoder(c.Body(), &f)
	return f
}

// Honeypot answers requests that fill the hidden website field with an
// ordinary-looking success so bots get no signal. fake builds the data
// payload for the given route.
func Honeypot(log zerolog.Logger, status int, fake func(c fiber.Ctx) any) fiber.Handler {
	return func(c fiber.Ctx) error {
		if readGateFields(c).Website == "" {
			return c.Next()
		}

		metrics.HoneypotTriggers.Inc()
		log.Warn().
			Str("ip_hash", logging.HashIPForLog(c.IP())).
			Str("path", sanitizePath(c.Path())).
			Msg("honeypot triggered")

		return Success(c, status, fake(c))
	}
}
