package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedis connects to Redis. It returns nil when redisURL is empty or the
// server is unreachable; callers fall back to in-process state.
func NewRedis(ctx context.Context, redisURL string, log zerolog.Logger) *redis.Client {
	if redisURL == "" {
		log.Info().Msg("redis: no URL configured, using in-process state")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis: invalid URL, using in-process state")
		return nil
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis: connection failed, using in-process state")
		_ = rdb.Close()
		return nil
	}

	log.Info().Msg("redis: connected")
	return rdb
}
