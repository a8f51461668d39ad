// Command merco-loadtest seeds users and drives concurrent sign-in,
// strict authentication and refresh traffic through a merco engine whose
// sessions live in Redis (or miniredis when no address is given).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/storage/memory"
)

const (
	loadTenant   = "loadtest"
	loadPassword = "Passw0rd!load"
)

type userState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (authenticate + refresh)")
		signIns     = flag.Int("signins", 2000, "sign-in operations (argon2-bound)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, MERCO_REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *signIns < 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("MERCO_REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		email := fmt.Sprintf("user-%d@load.test", i)
		res, err := engine.SignUp(ctx, loadTenant, email, loadPassword, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign up failed: %v\n", err)
			os.Exit(1)
		}
		states[i].email = email
		states[i].access = res.AccessToken
		states[i].refresh = res.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	signInStats := runPhase(*signIns, *concurrency, len(states), func(i, idx int) error {
		_, err := engine.SignIn(ctx, merco.SignInRequest{TenantID: loadTenant, Email: states[idx].email, Password: loadPassword})
		return err
	})
	authStats := runPhase(*ops, *concurrency, len(states), func(_, idx int) error {
		s := &states[idx]
		s.mu.Lock()
		tok := s.access
		s.mu.Unlock()
		_, err := engine.AuthenticateStrict(ctx, tok)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, len(states), func(_, idx int) error {
		s := &states[idx]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access, s.refresh = res.AccessToken, res.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("signin", signInStats)
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
}

func buildEngine(client redis.UniversalClient) (*merco.Engine, error) {
	cfg := merco.DefaultConfig()
	cfg.JWT.Secret = strings.Repeat("L", 32)
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.RateLimit.SignInAttempts = 1 << 30
	cfg.Audit.Enabled = false

	return merco.New().
		WithConfig(cfg).
		WithStorage(memory.New()).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
}

// runPhase runs ops calls of fn spread over concurrency workers, each call
// against a random user index.
func runPhase(ops, concurrency, users int, fn func(i, idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(i, r.Intn(users))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
