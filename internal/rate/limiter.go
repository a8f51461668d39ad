package rate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	shardCount = 64
	// pruneEvery bounds how often a shard scans for stale keys.
	pruneEvery = 1024
)

// Config sets the per-key budget.
type Config struct {
	Max    int
	Window time.Duration
}

// Validate rejects non-positive budgets.
func (c Config) Validate() error {
	if c.Max <= 0 {
		return errors.New("rate limit max must be > 0")
	}
	if c.Window <= 0 {
		return errors.New("rate limit window must be > 0")
	}
	return nil
}

// Limiter admits or rejects one call for key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

type bucket struct {
	count int
	start time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
}

// Window is an in-process fixed-window limiter.
//
// Window is safe for concurrent use; contention is confined to one of 64
// shards selected by key hash.
type Window struct {
	config Config
	now    func() time.Time
	shards [shardCount]shard
}

// NewWindow returns a limiter enforcing cfg.
func NewWindow(cfg Config) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Window{config: cfg, now: time.Now}
	for i := range w.shards {
		w.shards[i].buckets = make(map[string]*bucket)
	}
	return w, nil
}

// WithClock replaces the time source. It must be called before first use.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// Allow counts one call for key. It returns ErrRateLimited once Max calls have
// been admitted in the current window.
func (w *Window) Allow(_ context.Context, key string) error {
	now := w.now()
	sh := &w.shards[xxhash.Sum64String(key)%shardCount]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.calls++
	if sh.calls%pruneEvery == 0 {
		w.prune(sh, now)
	}

	b, ok := sh.buckets[key]
	if !ok {
		sh.buckets[key] = &bucket{count: 1, start: now}
		return nil
	}
	if now.Sub(b.start) >= w.config.Window {
		b.count = 1
		b.start = now
		return nil
	}
	if b.count >= w.config.Max {
		return ErrRateLimited
	}
	b.count++
	return nil
}

// Reset forgets key, e.g. after a successful sign-in.
func (w *Window) Reset(_ context.Context, key string) error {
	sh := &w.shards[xxhash.Sum64String(key)%shardCount]
	sh.mu.Lock()
	delete(sh.buckets, key)
	sh.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	n := 0
	for i := range w.shards {
		sh := &w.shards[i]
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}

// caller holds sh.mu
func (w *Window) prune(sh *shard, now time.Time) {
	for k, b := range sh.buckets {
		if now.Sub(b.start) >= w.config.Window {
			delete(sh.buckets, k)
		}
	}
}

// Nop admits everything.
type Nop struct{}

// Allow always returns nil.
func (Nop) Allow(context.Context, string) error { return nil }
