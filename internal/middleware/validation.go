package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
)

// MaxBodyBytes bounds write request bodies. The longest legal submission
// (note, evidence URL, contact, token) fits well within it.
const MaxBodyBytes = 16 * 1024

// RequireJSON rejects write requests whose body is not a JSON object of
// reasonable size, before any gate parses it.
func RequireJSON() fiber.Handler {
	return func(c fiber.Ctx) error {
		ct := strings.ToLower(c.Get(fiber.HeaderContentType))
		if !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
			return apperror.Validation("VALIDATION_ERROR", "Content-Type must be application/json")
		}
		body := c.Body()
		if len(body) > MaxBodyBytes {
			return apperror.Validation("PAYLOAD_TOO_LARGE", "Request body is too large")
		}
		trimmed := strings.TrimSpace(string(body))
		if trimmed == "" || trimmed[0] != '{' {
			return apperror.Validation("VALIDATION_ERROR", "Request body must be a JSON object")
		}
		return c.Next()
	}
}
