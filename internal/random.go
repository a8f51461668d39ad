package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Wire prefixes for opaque secrets. The encoded body is base64url without padding.
const (
	RefreshTokenPrefix = "rt_"
	SessionIDPrefix    = "sess_"
	APIKeyPrefix       = "mk_"
	MagicLinkPrefix    = "ml_"
	ResetTokenPrefix   = "reset_"

	refreshTokenRawSize = 48
	sessionIDRawSize    = 24
	apiKeyRawSize       = 24
	magicLinkRawSize    = 36
	resetTokenRawSize   = 36

	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func randomToken(prefix string, size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewSessionID returns "sess_" followed by 32 base64url characters.
func NewSessionID() (string, error) {
	return randomToken(SessionIDPrefix, sessionIDRawSize)
}

// NewRefreshToken returns "rt_" followed by 64 base64url characters (384 bits).
func NewRefreshToken() (string, error) {
	return randomToken(RefreshTokenPrefix, refreshTokenRawSize)
}

// NewAPIKey returns "mk_" followed by 32 base64url characters.
func NewAPIKey() (string, error) {
	return randomToken(APIKeyPrefix, apiKeyRawSize)
}

// NewMagicLinkToken returns "ml_" followed by 48 base64url characters.
func NewMagicLinkToken() (string, error) {
	return randomToken(MagicLinkPrefix, magicLinkRawSize)
}

// NewResetToken returns "reset_" followed by 48 base64url characters.
func NewResetToken() (string, error) {
	return randomToken(ResetTokenPrefix, resetTokenRawSize)
}

// HashSecret is the persisted form of every opaque secret: lowercase hex SHA-256.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HasPrefixedShape reports whether token carries prefix and a body of bodyLen
// base64url characters. It is a cheap pre-filter before any store lookup.
func HasPrefixedShape(token, prefix string, bodyLen int) bool {
	if !strings.HasPrefix(token, prefix) {
		return false
	}
	body := token[len(prefix):]
	if len(body) != bodyLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}

// EncodedLen returns the unpadded base64url length of n raw bytes.
func EncodedLen(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}

// Body lengths of each prefixed token.
var (
	RefreshTokenBodyLen = EncodedLen(refreshTokenRawSize)
	SessionIDBodyLen    = EncodedLen(sessionIDRawSize)
	APIKeyBodyLen       = EncodedLen(apiKeyRawSize)
	MagicLinkBodyLen    = EncodedLen(magicLinkRawSize)
	ResetTokenBodyLen   = EncodedLen(resetTokenRawSize)
)

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewBackupCode returns an uppercase code of length characters drawn from an
// alphabet without the easily confused 0/O and 1/I.
func NewBackupCode(length int) (string, error) {
	if length < 6 || length > 32 {
		return "", errors.New("invalid backup code length")
	}

	out := make([]byte, length)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = backupCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}
