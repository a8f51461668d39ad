package merco

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when the email is already registered in the tenant.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when the principal no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden is returned for banned principals.
	ErrForbidden = errors.New("forbidden")
	// ErrTokenExpired is returned for an expired access token or an expired or revoked session.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned for malformed, unknown or superseded tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrOTPInvalid is returned for a wrong, expired or used one-time code.
	ErrOTPInvalid = errors.New("otp expired or invalid")
	// ErrRateLimited is returned when an admission window is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidAPIKey is returned for an unknown or revoked API key.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrAPIKeyExpired is returned for an API key past its expiry.
	ErrAPIKeyExpired = errors.New("api key expired")
	// ErrPermissionDenied is returned when no held permission matches the required one.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSessionNotFound is returned when a session id matches nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRoleNotFound is returned when a role id matches nothing in the tenant.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists is returned when a role name is already taken in the tenant.
	ErrRoleExists = errors.New("role already exists")
	// ErrMFARequired is returned when the account has MFA and no code was supplied.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAInvalid is returned for a wrong TOTP or backup code.
	ErrMFAInvalid = errors.New("mfa invalid")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDelivery       = errors.New("delivery failed")
	ErrInternal       = errors.New("internal server error")
	ErrEngineNotReady = errors.New("engine not initialized")
)

type errorKind struct {
	err    error
	code   string
	status int
}

var errorKinds = []errorKind{
	{ErrInvalidCredentials, "invalid_credentials", http.StatusUnauthorized},
	{ErrUserExists, "user_exists", http.StatusConflict},
	{ErrUserNotFound, "user_not_found", http.StatusNotFound},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrTokenExpired, "token_expired", http.StatusUnauthorized},
	{ErrInvalidToken, "invalid_token", http.StatusUnauthorized},
	{ErrOTPInvalid, "otp_invalid", http.StatusUnauthorized},
	{ErrRateLimited, "rate_limit_exceeded", http.StatusTooManyRequests},
	{ErrInvalidAPIKey, "invalid_api_key", http.StatusUnauthorized},
	{ErrAPIKeyExpired, "api_key_expired", http.StatusUnauthorized},
	{ErrPermissionDenied, "permission_denied", http.StatusForbidden},
	{ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{ErrRoleNotFound, "role_not_found", http.StatusNotFound},
	{ErrRoleExists, "role_exists", http.StatusConflict},
	{ErrMFARequired, "mfa_required", http.StatusUnauthorized},
	{ErrMFAInvalid, "mfa_invalid", http.StatusUnauthorized},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrDelivery, "delivery_error", http.StatusBadGateway},
	{ErrEngineNotReady, "internal_error", http.StatusInternalServerError},
	{ErrInternal, "internal_error", http.StatusInternalServerError},
}

// ErrorCode maps err to its stable snake_case code. Unknown errors are internal_error.
func ErrorCode(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}

// HTTPStatus maps err to the status an HTTP boundary should answer with.
func HTTPStatus(err error) int {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the client-safe text for err. Internal errors never leak detail.
func PublicMessage(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			if k.status == http.StatusInternalServerError {
				return ErrInternal.Error()
			}
			return err.Error()
		}
	}
	return ErrInternal.Error()
}
