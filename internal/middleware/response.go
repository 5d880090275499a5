package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/apperror"
)

// Success writes the standard success envelope.
func Success(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// ErrorResponse writes the standard error envelope.
func ErrorResponse(c fiber.Ctx, status int, code, message string, details any) error {
	body := fiber.Map{
		"message":    message,
		"code":       code,
		"statusCode": status,
		"requestId":  requestid.FromContext(c),
	}
	if details != nil {
		body["details"] = details
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   body,
	})
}

// ErrorHandler renders every error returned by a handler as the error
// envelope. Unclassified errors are logged and reported generically.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return ErrorResponse(c, fe.Code, codeForStatus(fe.Code), fe.Message, nil)
		}

		ae := apperror.From(err)
		if ae.Kind == apperror.KindInternal {
			log.Error().Err(err).
				Str("method", c.Method()).
				Str("path", sanitizePath(c.Path())).
				Str("request_id", requestid.FromContext(c)).
				Msg("request failed")
		}
		return ErrorResponse(c, ae.Status(), ae.Code, ae.Message, ae.Details)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "ROUTE_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
