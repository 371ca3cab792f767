package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"taxfile/pkg/requestcontext"
)

// Middleware returns a handler wrapper enforcing the per-principal save
// budget. Unauthenticated requests pass through untouched; auth rejects
// them later. Store failures fail open: an autosave is worth less than
// availability.
func Middleware(store Store, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := requestcontext.UserID(r.Context())
			if userID.IsNil() {
				next.ServeHTTP(w, r)
				return
			}

			result, err := store.Allow(r.Context(), userID.String(), limit, window)
			if err != nil {
				logger.Error("rate limit store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := time.Until(result.ResetAt)
				if retryAfter < time.Second {
					retryAfter = time.Second
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "RATE_LIMITED",
					"message": "save budget exceeded, retry later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
