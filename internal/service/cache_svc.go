package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

const (
	AggregateCacheTTL = 5 * time.Minute
	cachePrefix       = "providertrust:"
)

// CacheService provides a Redis cache-aside layer for aggregate lookups.
// With a nil client every operation is a no-op.
type CacheService struct {
	rdb redis.UniversalClient
}

func NewCacheService(rdb redis.UniversalClient) *CacheService {
	return &CacheService{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (c *CacheService) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetAggregate returns the cached response, or nil when not cached.
func (c *CacheService) GetAggregate(ctx context.Context, npi, planID string) (*model.AggregateResponse, error) {
	if !c.Enabled() {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, aggregateKey(npi, planID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp model.AggregateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode cached aggregate: %w", err)
	}
	return &resp, nil
}

// SetAggregate stores an aggregate response.
func (c *CacheService) SetAggregate(ctx context.Context, npi, planID string, resp *model.AggregateResponse) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, aggregateKey(npi, planID), b, AggregateCacheTTL).Err()
}

// InvalidateAggregate removes a pair from cache (called after any write to it).
func (c *CacheService) InvalidateAggregate(ctx context.Context, npi, planID string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, aggregateKey(npi, planID)).Err()
}

func aggregateKey(npi, planID string) string {
	return fmt.Sprintf("%sacceptance:%s:%s", cachePrefix, npi, planID)
}
