package password

import (
	"errors"
	"strings"
	"unicode"
)

// Policy bounds.
const (
	MinLength      = 8
	MaxLength      = 128
	minEmailLength = 4
	maxEmailLength = 254
	minPhoneLength = 8
	maxPhoneLength = 20
)

var (
	// ErrPasswordLength is returned when a password is outside 8..128 bytes.
	ErrPasswordLength = errors.New("password must be between 8 and 128 characters")
	// ErrPasswordComposition is returned when a password lacks a letter or a digit.
	ErrPasswordComposition = errors.New("password must contain at least one letter and one digit")
	// ErrInvalidEmail is returned for addresses that fail the shape check.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPhone is returned for numbers that fail the shape check.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// ValidatePassword enforces length 8..128 and at least one letter and one digit.
func ValidatePassword(pw string) error {
	if len(pw) < MinLength || len(pw) > MaxLength {
		return ErrPasswordLength
	}

	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrPasswordComposition
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address. Emails are compared in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail is a shape check only: one '@' with non-empty sides, 4..254 bytes.
func ValidateEmail(email string) error {
	if len(email) < minEmailLength || len(email) > maxEmailLength {
		return ErrInvalidEmail
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ErrInvalidEmail
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePhone accepts '+' followed by digits, spaces or dashes, 8..20 bytes total.
func ValidatePhone(phone string) error {
	if len(phone) < minPhoneLength || len(phone) > maxPhoneLength || phone[0] != '+' {
		return ErrInvalidPhone
	}
	digits := 0
	for _, r := range phone[1:] {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-':
		default:
			return ErrInvalidPhone
		}
	}
	if digits < 7 {
		return ErrInvalidPhone
	}
	return nil
}

// NormalizePhone strips spaces and dashes so lookups match regardless of formatting.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// IsPhone reports whether identifier looks like a phone number rather than an email.
func IsPhone(identifier string) bool {
	return strings.HasPrefix(strings.TrimSpace(identifier), "+")
}
