// Package httptransport assembles the public HTTP surface: middleware
// chain, authenticated user routes, the admin group, and health.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	formhandler "taxfile/internal/form/handler"
	"taxfile/internal/platform/middleware"
	"taxfile/internal/ratelimit"
	"taxfile/internal/transport/http/shared"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config collects everything the router needs.
type Config struct {
	Logger *slog.Logger

	FormHandler *formhandler.Handler

	JWTValidator  middleware.JWTValidator
	AdminVerifier middleware.AdminKeyVerifier

	// Health checks run on /healthz, keyed by dependency name. Nil
	// checkers are skipped.
	HealthChecks map[string]HealthChecker

	RequestTimeout time.Duration
}

// NewRouter wires the full middleware chain and mounts all routes.
func NewRouter(cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", healthHandler(cfg.HealthChecks))

	// Owner-facing routes: JWT required.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(cfg.JWTValidator, logger))
		cfg.FormHandler.RegisterUserRoutes(r)
	})

	// Admin routes: JWT plus admin role or a verified admin key.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(cfg.JWTValidator, logger))
		r.Use(middleware.RequireAdmin(cfg.AdminVerifier, logger))
		cfg.FormHandler.RegisterAdminRoutes(r)
	})

	return r
}

// NewSaveLimiter builds the autosave rate-limit middleware from a counting
// store, for injection into the form handler.
func NewSaveLimiter(store ratelimit.Store, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return ratelimit.Middleware(store, limit, window, logger)
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(ctx); err != nil {
				deps[name] = "unreachable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		shared.WriteJSON(w, status, body)
	}
}
