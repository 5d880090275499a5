package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("INVALID_FIELD", "bad"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("UNAUTHORIZED", "no"), http.StatusUnauthorized},
		{"not found", NotFound("NOT_FOUND", "missing"), http.StatusNotFound},
		{"conflict", Conflict("DUPLICATE_VERIFICATION", "dup"), http.StatusConflict},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests},
		{"unavailable", Unavailable("SERVICE_UNAVAILABLE", "later"), http.StatusServiceUnavailable},
		{"internal", Internal("oops", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusOf(fmt.Errorf("wrap: %w", Conflict("X", "x"))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestFrom_WrappedError(t *testing.T) {
	base := Conflict("ALREADY_VOTED", "already voted")
	wrapped := fmt.Errorf("vote: %w", base)

	got := From(wrapped)
	require.Same(t, base, got)
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
}

func TestFrom_Unclassified(t *testing.T) {
	cause := errors.New("connection reset by peer")
	got := From(cause)

	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, "INTERNAL_ERROR", got.Code)
	assert.NotContains(t, got.Message, "connection reset")
	assert.ErrorIs(t, got, cause)
}

func TestWithDetails_DoesNotMutate(t *testing.T) {
	base := RateLimited("too many")
	withDetails := base.WithDetails(map[string]int{"retryAfter": 30})

	assert.Nil(t, base.Details)
	assert.NotNil(t, withDetails.Details)
}
