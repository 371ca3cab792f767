package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"taxfile/pkg/requestcontext"
)

// AdminKeyVerifier checks a presented admin API key against stored hashes.
// Implemented by internal/admin/keys.
type AdminKeyVerifier interface {
	VerifyKey(ctx context.Context, key string) error
}

// RequireAdmin allows requests whose token carries the admin role, or that
// present a valid X-Admin-Key header. Everything else gets 403.
// Must be mounted after RequireAuth.
func RequireAdmin(verifier AdminKeyVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if requestcontext.IsAdmin(ctx) {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get("X-Admin-Key"); key != "" && verifier != nil {
				if err := verifier.VerifyKey(ctx, key); err == nil {
					next.ServeHTTP(w, r.WithContext(requestcontext.WithAdmin(ctx, true)))
					return
				}
				logger.WarnContext(ctx, "admin key rejected",
					"request_id", requestcontext.RequestID(ctx),
				)
			}

			logger.WarnContext(ctx, "forbidden - admin privileges required",
				"user_id", requestcontext.UserID(ctx).String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"Admin privileges required"}`))
		})
	}
}
