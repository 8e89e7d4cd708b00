package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mnzioki/dukabook/pkg/async"
	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/observability"
	"github.com/mnzioki/dukabook/pkg/usage"
)

// LimitExceededResponse is the distinct response shape for a feature
// cap hit. Clients match on error == "limit_exceeded" to route to an
// upgrade prompt instead of a generic error toast.
type LimitExceededResponse struct {
	Error   string `json:"error"`
	Feature string `json:"feature"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
}

// UsageLimitMiddleware gates creation endpoints on the caller's monthly
// feature counters.
type UsageLimitMiddleware struct {
	usage usage.Service
}

// NewUsageLimitMiddleware creates a usage limit middleware.
func NewUsageLimitMiddleware(service usage.Service) *UsageLimitMiddleware {
	return &UsageLimitMiddleware{usage: service}
}

// EnforceLimit rejects the request with 403 when the user has exhausted
// the feature's monthly allowance. Requests without a user ID pass
// through; AuthMiddleware decides whether those are allowed at all.
func (m *UsageLimitMiddleware) EnforceLimit(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			err := m.usage.CheckLimit(r.Context(), userID, feature)
			if err != nil {
				var le *usage.LimitExceededError
				if errors.As(err, &le) {
					httputil.WriteJSON(w, http.StatusForbidden, LimitExceededResponse{
						Error:   "limit_exceeded",
						Feature: le.Feature,
						Current: le.Current,
						Limit:   le.Limit,
					})
					return
				}
				// A broken counter must not block sales at the till.
				observability.FromContext(r.Context()).
					WithError(err).
					WithField("feature", feature).
					Warn("Usage limit check failed, allowing request")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IncrementUsage bumps a feature counter off the request path after a
// successful create.
func IncrementUsage(ctx context.Context, service usage.Service, userID, feature string) {
	async.SafeGo(ctx, 5*time.Second, "increment feature usage", func(ctx context.Context) error {
		return service.Increment(ctx, userID, feature, 1)
	})
}
