package merco

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCodeAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{ErrInvalidCredentials, "invalid_credentials", http.StatusUnauthorized},
		{ErrUserExists, "user_exists", http.StatusConflict},
		{ErrForbidden, "forbidden", http.StatusForbidden},
		{ErrTokenExpired, "token_expired", http.StatusUnauthorized},
		{ErrInvalidToken, "invalid_token", http.StatusUnauthorized},
		{ErrOTPInvalid, "otp_invalid", http.StatusUnauthorized},
		{ErrRateLimited, "rate_limit_exceeded", http.StatusTooManyRequests},
		{ErrPermissionDenied, "permission_denied", http.StatusForbidden},
		{ErrDelivery, "delivery_error", http.StatusBadGateway},
		{fmt.Errorf("%w: email", ErrInvalidInput), "invalid_input", http.StatusBadRequest},
		{fmt.Errorf("%w: signup.create", ErrInternal), "internal_error", http.StatusInternalServerError},
		{errors.New("boom"), "internal_error", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		if got := ErrorCode(tc.err); got != tc.code {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.code)
		}
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	if got := PublicMessage(fmt.Errorf("%w: token.put", ErrInternal)); got != ErrInternal.Error() {
		t.Fatalf("unexpected internal message %q", got)
	}
	if got := PublicMessage(errors.New("pq: connection refused")); got != ErrInternal.Error() {
		t.Fatalf("unexpected unknown message %q", got)
	}
	msg := PublicMessage(fmt.Errorf("%w: password too short", ErrInvalidInput))
	if msg != "invalid input: password too short" {
		t.Fatalf("unexpected validation message %q", msg)
	}
}
