package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/middleware"
)

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", merco.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed request body", merco.ErrInvalidInput)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	middleware.WriteJSON(w, status, v)
}

// fail renders err. Server-side failures are logged with the request id.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if merco.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()), "error", err)
	}
	middleware.WriteError(w, err)
}

// tenant is always set behind middleware.APIKey.
func tenant(r *http.Request) string {
	t, _ := middleware.TenantFromContext(r.Context())
	return t
}

func identity(r *http.Request) *merco.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
