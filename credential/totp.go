package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// ErrTOTPSecret is returned for an empty or undecodable TOTP secret.
var ErrTOTPSecret = errors.New("credential: invalid totp secret")

// TOTPConfig parameterizes RFC 6238 codes.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// DefaultTOTPConfig is SHA1, 6 digits, 30 s period, one step of skew.
func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{Issuer: "Merco Auth", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1}
}

// TOTP generates secrets and verifies time-based codes.
type TOTP struct {
	config TOTPConfig
}

// NewTOTP returns a TOTP helper; zero fields fall back to DefaultTOTPConfig.
func NewTOTP(cfg TOTPConfig) *TOTP {
	def := DefaultTOTPConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	return &TOTP{config: cfg}
}

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a random 160-bit secret encoded as unpadded base32.
func (m *TOTP) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisionURI renders the otpauth:// URI authenticator apps scan.
func (m *TOTP) ProvisionURI(secretBase32, account string) string {
	issuer := m.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(m.config.Period))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("algorithm", strings.ToUpper(m.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the base32 secret at now, tolerating Skew steps
// either side.
func (m *TOTP) Verify(secretBase32, code string, now time.Time) (bool, error) {
	secret, err := b32.DecodeString(strings.ToUpper(strings.TrimRight(strings.TrimSpace(secretBase32), "=")))
	if err != nil || len(secret) == 0 {
		return false, ErrTOTPSecret
	}
	return m.verifyRaw(secret, code, now)
}

func (m *TOTP) verifyRaw(secret []byte, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isDigits(trimmed) {
		return false, nil
	}

	base := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotp(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// Code returns the code for secretBase32 at now. It exists for enrollment
// round-trips and tests.
func (m *TOTP) Code(secretBase32 string, now time.Time) (string, error) {
	secret, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
	if err != nil || len(secret) == 0 {
		return "", ErrTOTPSecret
	}
	return hotp(secret, now.Unix()/int64(m.config.Period), m.config.Digits, m.config.Algorithm)
}

func hotp(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
