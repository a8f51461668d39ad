package merco

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/storage/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// captureSender records every message and fails while err is set.
type captureSender struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (s *captureSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSender) last(t *testing.T) notify.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		t.Fatal("expected a delivered message")
	}
	return s.msgs[len(s.msgs)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = strings.Repeat("s", 32)
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.MagicLink.BaseURL = "https://app.example.com/auth/magic"
	cfg.PasswordReset.BaseURL = "https://app.example.com/reset"
	return cfg
}

func newMemoryStore() *memory.Store {
	return memory.New()
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	clock  *testClock
	sender *captureSender
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testEngineConfig())
}

func newTestEnvWithConfig(t testing.TB, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  newMemoryStore(),
		clock:  newTestClock(),
		sender: &captureSender{},
	}
	engine, err := New().
		WithConfig(cfg).
		WithStorage(env.store).
		WithSender(env.sender).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) signUp(t testing.TB, tenantID, email, pw string) *AuthResult {
	t.Helper()
	res, err := env.engine.SignUp(context.Background(), tenantID, email, pw, nil)
	if err != nil {
		t.Fatalf("SignUp(%s, %s) failed: %v", tenantID, email, err)
	}
	return res
}

func (env *testEnv) signIn(t *testing.T, tenantID, email, pw string) *AuthResult {
	t.Helper()
	res, err := env.engine.SignIn(context.Background(), SignInRequest{TenantID: tenantID, Email: email, Password: pw})
	if err != nil {
		t.Fatalf("SignIn(%s, %s) failed: %v", tenantID, email, err)
	}
	return res
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
