package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes the window, counts, and records in one atomic step.
// Scores are Unix milliseconds. Returns {count_before, oldest_score_or_-1}.
var admitScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = -1
if count > 0 then
  oldest = tonumber(redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2])
end
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
end
return {count, oldest}
`)

// RedisStore is a Store shared by every instance pointing at the same Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. Keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Admit(ctx context.Context, key string, rule Rule, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := admitScript.Run(ctx, s.client, []string{s.prefix + key},
		nowMs, rule.Window.Milliseconds(), rule.Limit, member).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}

	var oldest time.Time
	if res[1] >= 0 {
		oldest = time.UnixMilli(res[1]).UTC()
	}
	return decide(int(res[0]), oldest, rule, time.UnixMilli(nowMs).UTC()), nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
