package merco

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = strings.Repeat("k", 32)
	return cfg
}

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without secret to fail")
	}
	cfg = validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestDefaultConfigMatchesServiceDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.JWT.AccessTTL != time.Hour {
		t.Fatalf("access ttl: got %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("refresh ttl: got %v", cfg.JWT.RefreshTTL)
	}
	if cfg.OTP.TTL != 10*time.Minute || cfg.OTP.Digits != 6 {
		t.Fatalf("otp: got %+v", cfg.OTP)
	}
	if cfg.RateLimit.Requests != 60 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("rate limit: got %+v", cfg.RateLimit)
	}
}

func TestConfigValidateEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt signing uppercase valid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "HS256"
			},
			wantValid: true,
		},
		{
			name: "jwt signing invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "jwt short secret invalid",
			mutate: func(c *Config) {
				c.JWT.Secret = "short"
			},
			wantValid: false,
		},
		{
			name: "ed25519 without key invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
			},
			wantValid: false,
		},
		{
			name: "refresh shorter than access invalid",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = time.Minute
			},
			wantValid: false,
		},
		{
			name: "otp digits too small invalid",
			mutate: func(c *Config) {
				c.OTP.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "otp digits eight valid",
			mutate: func(c *Config) {
				c.OTP.Digits = 8
			},
			wantValid: true,
		},
		{
			name: "rate limit backend redis valid",
			mutate: func(c *Config) {
				c.RateLimit.Backend = "redis"
			},
			wantValid: true,
		},
		{
			name: "rate limit backend invalid",
			mutate: func(c *Config) {
				c.RateLimit.Backend = "memcached"
			},
			wantValid: false,
		},
		{
			name: "mfa skew invalid",
			mutate: func(c *Config) {
				c.MFA.Skew = 5
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero when enabled invalid",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero when disabled valid",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name: "password memory too small invalid",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "magic link base url required",
			mutate: func(c *Config) {
				c.MagicLink.BaseURL = ""
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuilderRejectsMissingStorage(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); err == nil {
		t.Fatal("expected build without storage to fail")
	}
}

func TestBuilderRejectsRedisBackendWithoutClient(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RateLimit.Backend = "redis"
	if _, err := New().WithConfig(cfg).WithStorage(newMemoryStore()).Build(); err == nil {
		t.Fatal("expected redis rate limit backend without client to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testEngineConfig()).WithStorage(newMemoryStore())
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
