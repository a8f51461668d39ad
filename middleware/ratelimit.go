package middleware

import (
	"net"
	"net/http"

	merco "github.com/SametHaymana/merco-api"
)

// RateLimit spends one unit of the caller's request budget per request. The
// caller is the API key verified by [APIKey], or the client address when the
// route takes no key. Mount it after APIKey: an unverified header never picks
// the budget.
func RateLimit(engine *merco.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := engine.Admit(r.Context(), rateKey(r)); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if kc, ok := APIKeyFromContext(r.Context()); ok {
		return "key:" + kc.KeyID
	}
	return "ip:" + ClientIP(r)
}

// ClientMeta records the client address and user agent on the request
// context, where the engine picks them up for new sessions and audit events.
func ClientMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := merco.WithClientIP(r.Context(), ClientIP(r))
		ctx = merco.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP is the host part of the remote address. Forwarding headers are
// ignored here; behind a trusted proxy mount chi's RealIP first so RemoteAddr
// already carries the client address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
