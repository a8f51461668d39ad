package middleware

import (
	"context"
	"net/http"
	"strings"

	merco "github.com/SametHaymana/merco-api"
)

// Mode selects how Guard verifies an access token.
type Mode int

const (
	// ModeJWTOnly checks signature and expiry only.
	ModeJWTOnly Mode = iota
	// ModeStrict also requires the session to be live.
	ModeStrict
)

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by Guard.
func IdentityFromContext(ctx context.Context) (*merco.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*merco.Identity)
	return id, ok && id != nil
}

// WithIdentity stores id the way Guard does. Handlers under test use it.
func WithIdentity(ctx context.Context, id *merco.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Guard rejects requests without a valid bearer access token and stores the
// verified identity in the request context.
func Guard(engine *merco.Engine, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, merco.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, merco.ErrInvalidToken)
				return
			}

			var (
				id  *merco.Identity
				err error
			)
			if mode == ModeStrict {
				id, err = engine.AuthenticateStrict(r.Context(), token)
			} else {
				id, err = engine.Authenticate(r.Context(), token)
			}
			if err != nil {
				WriteError(w, err)
				return
			}

			// A token minted for another tenant never passes a tenant-scoped route.
			if tenant, ok := TenantFromContext(r.Context()); ok && tenant != id.TenantID {
				WriteError(w, merco.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
