// Package httpapi exposes the engine over JSON/HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/middleware"
)

// Check reports whether a dependency is reachable.
type Check = func(ctx context.Context) error

// Options configures NewRouter. Every field is optional.
type Options struct {
	Logger *slog.Logger
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// Checks run on GET /readyz, keyed by dependency name.
	Checks map[string]Check
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable it only when every request arrives through a proxy that sets them.
	TrustProxy bool
}

type handler struct {
	engine *merco.Engine
	logger *slog.Logger
}

// NewRouter builds the HTTP surface. Every /v1 route except the emailed
// magic-link target requires an X-API-Key, which fixes the tenant.
func NewRouter(engine *merco.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if opts.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.ClientMeta)

	health := &healthHandler{checks: opts.Checks}
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	admit := middleware.RateLimit(engine)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Opened from an email, so the tenant travels in the query string.
			r.With(admit).Get("/magic-link/verify", h.verifyMagicLinkQuery)

			r.Group(func(r chi.Router) {
				r.Use(middleware.APIKey(engine))
				r.Use(admit)

				r.Post("/signup", h.signUp)
				r.Post("/signin", h.signIn)
				r.Post("/refresh", h.refresh)

				r.Post("/otp/send", h.sendOTP)
				r.Post("/otp/verify", h.verifyOTP)
				r.Post("/magic-link/send", h.sendMagicLink)
				r.Post("/magic-link/verify", h.verifyMagicLink)

				r.Post("/password/reset", h.requestPasswordReset)
				r.Post("/password/reset/confirm", h.confirmPasswordReset)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireStrict(engine))

					r.Get("/verify", h.verify)
					r.Get("/session", h.currentSession)
					r.Post("/signout", h.signOut)
					r.Post("/signout-all", h.signOutAll)
					r.Post("/password/change", h.changePassword)
					r.Post("/mfa/enroll", h.enrollMFA)
					r.Post("/mfa/confirm", h.confirmMFA)
					r.Post("/mfa/disable", h.disableMFA)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKey(engine))
			r.Use(admit)

			r.Route("/me", func(r chi.Router) {
				r.Use(middleware.RequireStrict(engine))
				r.Get("/", h.me)
				r.Get("/permissions", h.myPermissions)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.Post("/", h.createAPIKey)
				r.Get("/", h.listAPIKeys)
				r.Delete("/{keyID}", h.revokeAPIKey)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Post("/", h.createRole)
				r.Get("/", h.listRoles)
				r.Put("/{roleID}", h.updateRole)
				r.Delete("/{roleID}", h.deleteRole)
			})

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/", h.getUser)
				r.Post("/ban", h.banUser)
				r.Delete("/ban", h.unbanUser)
				r.Get("/permissions", h.userPermissions)
				r.Post("/authorize", h.authorizeUser)
				r.Post("/roles", h.assignRole)
				r.Delete("/roles/{roleID}", h.unassignRole)
				r.Post("/signout-all", h.signOutUser)
			})
		})
	})

	return r
}
