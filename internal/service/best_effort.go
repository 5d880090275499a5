package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const bestEffortTimeout = 2 * time.Second

// bestEffort runs a side effect that must not fail the request: it gets its
// own short deadline, detached from the caller's, and errors are only logged.
func bestEffort(log zerolog.Logger, op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("best-effort operation failed")
	}
}
