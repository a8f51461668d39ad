package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestWindowAdmitsExactlyMax(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w, err := NewWindow(Config{Max: 60, Window: time.Minute})
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	w.WithClock(func() time.Time { return now })

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		if err := w.Allow(ctx, "k"); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}
	if err := w.Allow(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("61st call: expected ErrRateLimited, got %v", err)
	}
	if err := w.Allow(ctx, "other"); err != nil {
		t.Fatalf("independent key rejected: %v", err)
	}
}

func TestWindowLazyReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w, _ := NewWindow(Config{Max: 2, Window: time.Minute})
	w.WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = w.Allow(ctx, "k")
	_ = w.Allow(ctx, "k")
	if err := w.Allow(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}

	now = now.Add(59 * time.Second)
	if err := w.Allow(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit inside window, got %v", err)
	}

	now = now.Add(time.Second)
	if err := w.Allow(ctx, "k"); err != nil {
		t.Fatalf("expected reset after window, got %v", err)
	}
	if err := w.Allow(ctx, "k"); err != nil {
		t.Fatalf("second call in new window rejected: %v", err)
	}
	if err := w.Allow(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit in new window, got %v", err)
	}
}

func TestWindowConcurrentBudget(t *testing.T) {
	w, _ := NewWindow(Config{Max: 100, Window: time.Hour})
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if w.Allow(ctx, "shared") == nil {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 100 {
		t.Fatalf("expected exactly 100 admissions, got %d", got)
	}
}

func TestWindowResetAndPrune(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w, _ := NewWindow(Config{Max: 1, Window: time.Second})
	w.WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = w.Allow(ctx, "k")
	_ = w.Reset(ctx, "k")
	if err := w.Allow(ctx, "k"); err != nil {
		t.Fatalf("expected admission after Reset, got %v", err)
	}

	for i := 0; i < 5000; i++ {
		_ = w.Allow(ctx, time.Duration(i).String())
	}
	now = now.Add(2 * time.Second)
	for i := 0; i < pruneEvery; i++ {
		_ = w.Allow(ctx, "hot")
	}
	if n := w.Len(); n >= 5000 {
		t.Fatalf("expected stale keys pruned, still tracking %d", n)
	}
}

func TestNewWindowValidates(t *testing.T) {
	if _, err := NewWindow(Config{Max: 0, Window: time.Second}); err == nil {
		t.Fatal("expected error for zero max")
	}
	if _, err := NewWindow(Config{Max: 1}); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func newRedisWindow(t *testing.T, cfg Config) (*RedisWindow, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l, err := NewRedisWindow(rdb, "rl:", cfg)
	if err != nil {
		t.Fatalf("NewRedisWindow: %v", err)
	}
	return l, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisWindow(t *testing.T) {
	l, mr, done := newRedisWindow(t, Config{Max: 3, Window: time.Minute})
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "ip"); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "ip"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ttl := mr.TTL("rl:ip"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "ip"); err != nil {
		t.Fatalf("expected admission after window, got %v", err)
	}

	if err := l.Reset(ctx, "ip"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if mr.Exists("rl:ip") {
		t.Fatal("expected key removed after Reset")
	}
}

func TestRedisWindowUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l, _ := NewRedisWindow(rdb, "rl:", Config{Max: 3, Window: time.Minute})
	mr.Close()

	if err := l.Allow(context.Background(), "ip"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
