package internal

import (
	"strings"
	"testing"
)

func TestPrefixedTokenShapes(t *testing.T) {
	cases := []struct {
		name    string
		mint    func() (string, error)
		prefix  string
		bodyLen int
	}{
		{"refresh", NewRefreshToken, RefreshTokenPrefix, 64},
		{"session", NewSessionID, SessionIDPrefix, 32},
		{"apikey", NewAPIKey, APIKeyPrefix, 32},
		{"magic", NewMagicLinkToken, MagicLinkPrefix, 48},
		{"reset", NewResetToken, ResetTokenPrefix, 48},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := tc.mint()
			if err != nil {
				t.Fatalf("mint: %v", err)
			}
			if !strings.HasPrefix(tok, tc.prefix) {
				t.Fatalf("expected prefix %q, got %q", tc.prefix, tok)
			}
			if got := len(tok) - len(tc.prefix); got != tc.bodyLen {
				t.Fatalf("expected body length %d, got %d", tc.bodyLen, got)
			}
			if !HasPrefixedShape(tok, tc.prefix, tc.bodyLen) {
				t.Fatalf("HasPrefixedShape rejected minted token %q", tok)
			}
			other, _ := tc.mint()
			if other == tok {
				t.Fatal("two mints returned the same token")
			}
		})
	}
}

func TestHasPrefixedShapeRejects(t *testing.T) {
	if HasPrefixedShape("xx_abc", RefreshTokenPrefix, 3) {
		t.Fatal("wrong prefix accepted")
	}
	if HasPrefixedShape("rt_abc", RefreshTokenPrefix, 64) {
		t.Fatal("short body accepted")
	}
	if HasPrefixedShape("rt_"+strings.Repeat("!", 64), RefreshTokenPrefix, 64) {
		t.Fatal("non-base64 body accepted")
	}
}

func TestHashSecretIsStableHex(t *testing.T) {
	a := HashSecret("rt_secret")
	if a != HashSecret("rt_secret") {
		t.Fatal("hash not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == HashSecret("rt_secret2") {
		t.Fatal("distinct secrets hashed equal")
	}
}

func TestNewOTPDigits(t *testing.T) {
	code, err := NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non digit in %q", code)
		}
	}
	if _, err := NewOTP(4); err == nil {
		t.Fatal("expected error for 4 digits")
	}
}

func TestNewBackupCode(t *testing.T) {
	code, err := NewBackupCode(8)
	if err != nil {
		t.Fatalf("NewBackupCode: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8 chars, got %q", code)
	}
	if strings.ContainsAny(code, "01IO") {
		t.Fatalf("ambiguous character in %q", code)
	}
}
