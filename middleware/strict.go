package middleware

import (
	"net/http"

	merco "github.com/SametHaymana/merco-api"
)

// RequireJWTOnly is Guard in ModeJWTOnly. No store is consulted.
func RequireJWTOnly(engine *merco.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeJWTOnly)
}

// RequireStrict is Guard in ModeStrict. Signed-out sessions are rejected
// before their access tokens expire.
func RequireStrict(engine *merco.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeStrict)
}

// RequirePermission rejects requests whose identity does not hold required.
// It must run after Guard.
func RequirePermission(engine *merco.Engine, required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, merco.ErrInvalidToken)
				return
			}
			if err := engine.Authorize(r.Context(), id, required); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
