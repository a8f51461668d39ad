package middleware

import (
	"context"
	"net/http"
	"strings"

	merco "github.com/SametHaymana/merco-api"
)

// APIKeyHeader carries the tenant API key.
const APIKeyHeader = "X-API-Key"

type apiKeyContextKey struct{}

// APIKeyFromContext returns the key identity stored by APIKey.
func APIKeyFromContext(ctx context.Context) (*merco.APIKeyIdentity, bool) {
	kc, ok := ctx.Value(apiKeyContextKey{}).(*merco.APIKeyIdentity)
	return kc, ok && kc != nil
}

// TenantFromContext resolves the tenant of the request: the API key's tenant
// when one was verified, else the access token's.
func TenantFromContext(ctx context.Context) (string, bool) {
	if kc, ok := APIKeyFromContext(ctx); ok {
		return kc.TenantID, true
	}
	if id, ok := IdentityFromContext(ctx); ok {
		return id.TenantID, true
	}
	return "", false
}

// APIKey verifies the X-API-Key header and scopes the request to its tenant.
// Requests without the header are rejected.
func APIKey(engine *merco.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if raw == "" {
				WriteError(w, merco.ErrInvalidAPIKey)
				return
			}
			kc, err := engine.VerifyAPIKey(r.Context(), raw)
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyContextKey{}, kc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
