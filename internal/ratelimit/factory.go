package ratelimit

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
)

const memorySweepInterval = time.Minute

// NewStore picks the backing store once at startup: Redis when a client is
// available, otherwise a process-local MemoryStore.
func NewStore(client redis.UniversalClient, clk clock.Clock, log zerolog.Logger) Store {
	if client != nil {
		log.Info().Str("store", "redis").Msg("rate limiter: using shared store")
		return NewRedisStore(client, "providertrust:")
	}
	log.Warn().
		Str("store", "memory").
		Msg("rate limiter: redis unavailable, using in-process store; limits are per instance and scale with instance count")
	return NewMemoryStore(clk, memorySweepInterval)
}
