package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/logging"
)

const HeaderAdminSecret = "X-Admin-Secret"

// AdminAuth guards admin routes with a shared secret. With no secret
// configured the routes are disabled.
func AdminAuth(secret string, log zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		if secret == "" {
			return apperror.Unavailable("ADMIN_DISABLED", "Admin endpoints are not configured")
		}
		got := c.Get(HeaderAdminSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warn().
				Str("ip_hash", logging.HashIPForLog(c.IP())).
				Str("path", sanitizePath(c.Path())).
				Msg("admin auth failed")
			return apperror.Unauthorized("UNAUTHORIZED", "Invalid or missing admin secret")
		}
		return c.Next()
	}
}
