package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/logging"
)

// sanitizePath replaces dynamic path segments (verification IDs, NPIs, plan
// IDs) with placeholders so logs group by route.
func sanitizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p != "verify" {
			continue
		}
		rest := parts[i+1:]
		switch {
		case len(rest) == 2 && rest[1] == "vote":
			rest[0] = ":verificationId"
		case len(rest) == 2:
			rest[0], rest[1] = ":npi", ":planId"
		}
		break
	}
	return strings.Join(parts, "/")
}

// NewRequestLogger returns a Fiber middleware that logs each request as
// structured JSON. Raw IPs are hashed; dynamic path segments are sanitized.
func NewRequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// Render now so the logged status matches what the client gets.
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		duration := time.Since(start)
		status := c.Response().StatusCode()

		evt := log.Info()
		if status >= 500 {
			evt = log.Error()
		} else if status >= 400 {
			evt = log.Warn()
		}

		evt.
			Str("method", c.Method()).
			Str("path", sanitizePath(c.Path())).
			Int("status", status).
			Dur("duration_ms", duration).
			Str("ip_hash", logging.HashIPForLog(c.IP())).
			Str("request_id", requestid.FromContext(c)).
			Int("bytes_sent", len(c.Response().Body())).
			Msg("request")

		return nil
	}
}
