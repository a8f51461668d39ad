package merco

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotatesAndKillsPresentedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	env.clock.Advance(time.Minute)
	next, err := env.engine.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.SessionID != res.SessionID {
		t.Fatalf("refresh must keep the session id: %s vs %s", next.SessionID, res.SessionID)
	}
	if next.RefreshToken == res.RefreshToken || next.AccessToken == res.AccessToken {
		t.Fatal("expected a new token pair")
	}
	if next.User.ID != res.User.ID {
		t.Fatalf("unexpected user in refresh result: %+v", next.User)
	}

	_, err = env.engine.Refresh(ctx, res.RefreshToken)
	expectErr(t, err, ErrInvalidToken)

	if _, err := env.engine.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t)
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), res.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrInvalidToken) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshRejectsMalformedToken(t *testing.T) {
	env := newTestEnv(t)

	for _, tok := range []string{"", "rt_short", "sess_abc", "garbage"} {
		_, err := env.engine.Refresh(context.Background(), tok)
		expectErr(t, err, ErrInvalidToken)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshFailure]; got != 4 {
		t.Fatalf("expected 4 refresh failures, got %d", got)
	}
}

func TestRefreshAfterSessionExpiry(t *testing.T) {
	cfg := testEngineConfig()
	cfg.JWT.RefreshTTL = 2 * time.Hour
	env := newTestEnvWithConfig(t, cfg)
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	env.clock.Advance(2 * time.Hour)
	_, err := env.engine.Refresh(context.Background(), res.RefreshToken)
	expectErr(t, err, ErrTokenExpired)
}

func TestRefreshPicksUpRoleChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	role, err := env.engine.CreateRole(ctx, "T", RoleInput{Name: "admin", Permissions: []string{"*:*"}})
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if err := env.engine.AssignRole(ctx, "T", res.User.ID, role.ID); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}

	next, err := env.engine.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	id, err := env.engine.Authenticate(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := env.engine.Authorize(ctx, id, "billing:delete"); err != nil {
		t.Fatalf("expected wildcard role to authorize, got %v", err)
	}
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	if err := env.engine.SignOut(ctx, res.SessionID); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if err := env.engine.SignOut(ctx, res.SessionID); err != nil {
		t.Fatalf("second SignOut should succeed, got %v", err)
	}
	expectErr(t, env.engine.SignOut(ctx, "sess_missing"), ErrSessionNotFound)

	_, err := env.engine.Refresh(ctx, res.RefreshToken)
	expectErr(t, err, ErrTokenExpired)

	info, err := env.engine.Session(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if info.Active {
		t.Fatal("expected revoked session to be inactive")
	}
}

func TestSignOutAllRevokesOnlyThatUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.signUp(t, "T", "a@b.com", "Passw0rd!")
	a2 := env.signIn(t, "T", "a@b.com", "Passw0rd!")
	b := env.signUp(t, "T", "c@d.com", "Passw0rd!")

	n, err := env.engine.SignOutAll(ctx, "T", a.User.ID)
	if err != nil {
		t.Fatalf("SignOutAll failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", n)
	}

	for _, tok := range []string{a.RefreshToken, a2.RefreshToken} {
		_, err := env.engine.Refresh(ctx, tok)
		expectErr(t, err, ErrTokenExpired)
	}
	if _, err := env.engine.Refresh(ctx, b.RefreshToken); err != nil {
		t.Fatalf("other user's refresh failed: %v", err)
	}
}

func TestSessionRecordsClientMeta(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "curl/8.0")

	res, err := env.engine.SignUp(ctx, "T", "a@b.com", "Passw0rd!", nil)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	info, err := env.engine.Session(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if info.IP != "203.0.113.7" || info.UserAgent != "curl/8.0" {
		t.Fatalf("unexpected client meta: %+v", info)
	}
	if !info.Active || info.TenantID != "T" || info.UserID != res.User.ID {
		t.Fatalf("unexpected session info: %+v", info)
	}
}

func TestSweepExpired(t *testing.T) {
	cfg := testEngineConfig()
	cfg.JWT.RefreshTTL = 2 * time.Hour
	env := newTestEnvWithConfig(t, cfg)
	ctx := context.Background()

	env.signUp(t, "T", "a@b.com", "Passw0rd!")
	if err := env.engine.SendOTP(ctx, "T", ChannelEmail, "a@b.com"); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	rep, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if rep.Sessions != 0 || rep.Tokens != 0 {
		t.Fatalf("expected nothing to sweep yet, got %+v", rep)
	}

	env.clock.Advance(3 * time.Hour)
	rep, err = env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if rep.Sessions != 1 || rep.Tokens != 1 {
		t.Fatalf("expected one session and one token swept, got %+v", rep)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricSessionsSwept] != 1 || snap.Counters[MetricTokensSwept] != 1 {
		t.Fatalf("unexpected sweep counters: %d/%d", snap.Counters[MetricSessionsSwept], snap.Counters[MetricTokensSwept])
	}
}
