package merco

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.CreateAPIKey(ctx, "T", "ci", 0)
	if err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(created.Key, "mk_") || !strings.HasPrefix(created.Key, created.Prefix) {
		t.Fatalf("unexpected key %q prefix %q", created.Key, created.Prefix)
	}
	if created.ExpiresAt != nil || !created.Active {
		t.Fatalf("unexpected key info %+v", created.APIKeyInfo)
	}

	kc, err := env.engine.VerifyAPIKey(ctx, created.Key)
	if err != nil {
		t.Fatalf("VerifyAPIKey failed: %v", err)
	}
	if kc.TenantID != "T" || kc.KeyID != created.ID || kc.Name != "ci" {
		t.Fatalf("unexpected key context %+v", kc)
	}

	keys, err := env.engine.ListAPIKeys(ctx, "T")
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != created.ID {
		t.Fatalf("unexpected key list %+v", keys)
	}

	expectErr(t, env.engine.RevokeAPIKey(ctx, "OTHER", created.ID), ErrInvalidAPIKey)
	if err := env.engine.RevokeAPIKey(ctx, "T", created.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}
	_, err = env.engine.VerifyAPIKey(ctx, created.Key)
	expectErr(t, err, ErrInvalidAPIKey)

	keys, err = env.engine.ListAPIKeys(ctx, "T")
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 1 || keys[0].Active {
		t.Fatalf("expected revoked key to stay listed as inactive, got %+v", keys)
	}
}

func TestAPIKeyExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.CreateAPIKey(ctx, "T", "short-lived", time.Hour)
	if err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if created.ExpiresAt == nil || !created.ExpiresAt.Equal(env.clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", created.ExpiresAt)
	}
	if _, err := env.engine.VerifyAPIKey(ctx, created.Key); err != nil {
		t.Fatalf("VerifyAPIKey failed: %v", err)
	}

	env.clock.Advance(time.Hour)
	_, err = env.engine.VerifyAPIKey(ctx, created.Key)
	expectErr(t, err, ErrAPIKeyExpired)
}

func TestAPIKeyRejectsUnknownAndMalformed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, raw := range []string{"", "mk_short", "sk_" + strings.Repeat("a", 43), "mk_" + strings.Repeat("A", 43)} {
		_, err := env.engine.VerifyAPIKey(ctx, raw)
		expectErr(t, err, ErrInvalidAPIKey)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAPIKeyRejected]; got != 4 {
		t.Fatalf("expected 4 rejections, got %d", got)
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.CreateAPIKey(ctx, "", "ci", 0)
	expectErr(t, err, ErrInvalidInput)
	_, err = env.engine.CreateAPIKey(ctx, "T", "   ", 0)
	expectErr(t, err, ErrInvalidInput)
	_, err = env.engine.CreateAPIKey(ctx, "T", "ci", -time.Second)
	expectErr(t, err, ErrInvalidInput)
}
