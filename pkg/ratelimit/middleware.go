package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	"github.com/tendant/login-guard/pkg/identifier"
)

type contextKey string

const identifierKey contextKey = "ratelimit.identifier"

// IdentifierFromContext returns the identifier the middleware derived for the
// request, so the wrapped handler can call RecordLoginAttempt with it.
func IdentifierFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identifierKey).(string)
	return id
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Middleware rejects requests from blocked identifiers with 429 before they
// reach next.
func Middleware(limiter *Limiter, policy Policy) func(http.Handler) http.Handler {
	policy = policy.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identifier.FromRequest(r)
			result := limiter.CheckRateLimit(r.Context(), id, policy)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxAttempts))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				retryAfter := 0
				if result.BlockedUntil != nil {
					retryAfter = int(math.Ceil(result.BlockedUntil.Sub(limiter.now()).Seconds()))
				}
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				}

				slog.Warn("Rate limit exceeded",
					"policy", policy.Name,
					"decision", result.Decision,
					"user", getUserID(r),
					"path", r.URL.Path,
					"method", r.Method,
				)

				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, errorResponse{
					Error:      "rate_limit_exceeded",
					Message:    result.Message,
					RetryAfter: retryAfter,
				})
				return
			}

			ctx := context.WithValue(r.Context(), identifierKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// getUserID extracts the user ID from JWT token in the request context
func getUserID(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}

	for _, key := range []string{"sub", "user_id", "id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
