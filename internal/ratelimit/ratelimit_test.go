package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryStore(clock.NewStub(t0), 0)
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]Store{
		"memory": mem,
		"redis":  NewRedisStore(client, "test:"),
	}
}

func newTestLimiter(store Store, clk clock.Clock, limit int) *Limiter {
	rules := map[Class]Rule{
		ClassVerify:  {Limit: limit, Window: time.Hour},
		ClassDefault: {Limit: 200, Window: time.Hour},
	}
	return NewLimiter(store, rules, clk, zerolog.Nop())
}

func TestLimiter_TenPerHour(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewStub(t0)
			l := newTestLimiter(store, clk, 10)
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				d := l.Admit(ctx, "ip:203.0.113.9", ClassVerify)
				require.Truef(t, d.Allowed, "request %d should be allowed", i+1)
				assert.Equal(t, 10-i-1, d.Remaining)
				clk.Advance(100 * time.Millisecond)
			}

			d := l.Admit(ctx, "ip:203.0.113.9", ClassVerify)
			require.False(t, d.Allowed, "11th request should be denied")
			assert.Greater(t, d.RetryAfter, time.Duration(0))
			assert.Equal(t, time.Hour-time.Second, d.RetryAfter)
			assert.Equal(t, 0, d.Remaining)

			// The first request leaves the window exactly one hour after it was made.
			clk.Set(t0.Add(time.Hour))
			d = l.Admit(ctx, "ip:203.0.113.9", ClassVerify)
			assert.True(t, d.Allowed, "request should be admitted once the oldest leaves the window")

			// Nothing else has expired yet.
			d = l.Admit(ctx, "ip:203.0.113.9", ClassVerify)
			assert.False(t, d.Allowed)
			assert.Equal(t, 100*time.Millisecond, d.RetryAfter)

			clk.Advance(2 * time.Hour)
			d = l.Admit(ctx, "ip:203.0.113.9", ClassVerify)
			assert.True(t, d.Allowed, "request should be admitted after the window fully elapses")
			assert.Equal(t, 9, d.Remaining)
		})
	}
}

func TestLimiter_KeysAndClassesIndependent(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewStub(t0)
			l := newTestLimiter(store, clk, 2)
			ctx := context.Background()

			l.Admit(ctx, "ip:a", ClassVerify)
			l.Admit(ctx, "ip:a", ClassVerify)
			assert.False(t, l.Admit(ctx, "ip:a", ClassVerify).Allowed, "ip:a should be exhausted")
			assert.True(t, l.Admit(ctx, "ip:b", ClassVerify).Allowed, "ip:b has its own budget")
			assert.True(t, l.Admit(ctx, "ip:a", ClassDefault).Allowed, "default class has its own budget")
		})
	}
}

func TestStores_EquivalentDecisions(t *testing.T) {
	stores := newStores(t)
	rule := Rule{Limit: 4, Window: 10 * time.Second}
	ctx := context.Background()

	// Offsets in milliseconds, including hits exactly on the window boundary.
	offsets := []int64{0, 1, 2, 3, 4, 2500, 9999, 10000, 10001, 10002, 10003, 12500, 20000, 20001, 20002, 30002, 30003}

	results := make(map[string][]Decision)
	for name, store := range stores {
		for _, off := range offsets {
			now := t0.Add(time.Duration(off) * time.Millisecond)
			d, err := store.Admit(ctx, "rl:verify:ip:eq", rule, now)
			require.NoError(t, err)
			d.ResetAt = d.ResetAt.UTC()
			results[name] = append(results[name], d)
		}
	}

	mem, red := results["memory"], results["redis"]
	require.Len(t, red, len(mem))
	for i := range mem {
		assert.Equalf(t, mem[i].Allowed, red[i].Allowed, "offset %dms allowed", offsets[i])
		assert.Equalf(t, mem[i].Remaining, red[i].Remaining, "offset %dms remaining", offsets[i])
		assert.Equalf(t, mem[i].RetryAfter, red[i].RetryAfter, "offset %dms retryAfter", offsets[i])
		assert.Truef(t, mem[i].ResetAt.Equal(red[i].ResetAt), "offset %dms resetAt", offsets[i])
	}

	// Spot-check the boundary: the 5th request at +4ms is denied, the one at
	// +10000ms is admitted because the +0ms stamp has aged a full window.
	assert.False(t, mem[4].Allowed)
	assert.True(t, mem[7].Allowed)
}

func TestMemoryStore_ConcurrentAdmitsNeverExceedLimit(t *testing.T) {
	store := NewMemoryStore(clock.NewStub(t0), 0)
	defer store.Close()

	rule := Rule{Limit: 10, Window: time.Hour}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := store.Admit(context.Background(), "k", rule, t0)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestMemoryStore_Sweep(t *testing.T) {
	clk := clock.NewStub(t0)
	store := NewMemoryStore(clk, 0)
	defer store.Close()

	rule := Rule{Limit: 5, Window: time.Minute}
	_, _ = store.Admit(context.Background(), "old", rule, t0)
	_, _ = store.Admit(context.Background(), "fresh", rule, t0.Add(50*time.Second))
	require.Equal(t, 2, store.Len())

	clk.Set(t0.Add(70 * time.Second))
	store.Sweep()
	assert.Equal(t, 1, store.Len(), "only the key with in-window stamps survives")
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	store := NewMemoryStore(clock.Real{}, 10*time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

type failingStore struct{}

func (failingStore) Admit(context.Context, string, Rule, time.Time) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}
func (failingStore) Close() error { return nil }

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	l := newTestLimiter(failingStore{}, clock.NewStub(t0), 1)
	for i := 0; i < 3; i++ {
		d := l.Admit(context.Background(), "ip:x", ClassVerify)
		assert.True(t, d.Allowed)
		assert.True(t, d.Degraded)
	}
}

func TestLimiter_UnknownClassUsesDefault(t *testing.T) {
	l := newTestLimiter(NewMemoryStore(clock.NewStub(t0), 0), clock.NewStub(t0), 1)
	defer l.Close()
	assert.Equal(t, 200, l.Rule(ClassSearch).Limit)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rl:vote:ip:1.2.3.4", Key(ClassVote, "ip:1.2.3.4"))
}

func TestNewStore(t *testing.T) {
	mem := NewStore(nil, clock.NewStub(t0), zerolog.Nop())
	t.Cleanup(func() { _ = mem.Close() })
	assert.IsType(t, &MemoryStore{}, mem)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	assert.IsType(t, &RedisStore{}, NewStore(client, clock.NewStub(t0), zerolog.Nop()))
}
