package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
)

// MemoryStore is a process-local Store. State is lost on restart and is not
// shared between instances, so under horizontal scaling each instance admits
// the full budget on its own.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   clock.Clock

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type window struct {
	stamps []time.Time // oldest first
	span   time.Duration
}

// NewMemoryStore creates a MemoryStore and starts its sweeper, which drops
// keys with no in-window timestamps every sweepEvery. Call Close to stop it.
func NewMemoryStore(clk clock.Clock, sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*window),
		clock:   clk,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.sweepLoop(sweepEvery)
	return s
}

func (s *MemoryStore) Admit(_ context.Context, key string, rule Rule, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.span = rule.Window
	w.prune(now)

	var oldest time.Time
	if len(w.stamps) > 0 {
		oldest = w.stamps[0]
	}
	d := decide(len(w.stamps), oldest, rule, now)
	if d.Allowed {
		w.insert(now)
	}
	return d, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep drops keys whose timestamps have all left their window.
func (s *MemoryStore) Sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		w.prune(now)
		if len(w.stamps) == 0 {
			delete(s.windows, key)
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	defer close(s.done)
	if every <= 0 {
		<-s.stop
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// prune removes timestamps at or before now-span.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := sort.Search(len(w.stamps), func(i int) bool { return w.stamps[i].After(cutoff) })
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func (w *window) insert(t time.Time) {
	i := sort.Search(len(w.stamps), func(i int) bool { return w.stamps[i].After(t) })
	w.stamps = append(w.stamps, time.Time{})
	copy(w.stamps[i+1:], w.stamps[i:])
	w.stamps[i] = t
}
