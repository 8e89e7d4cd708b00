package middleware

import (
	"net/http"
	"strings"

	"github.com/mnzioki/dukabook/pkg/auth"
	"github.com/mnzioki/dukabook/pkg/contextkeys"
	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/observability"
)

// AuthMiddleware validates Bearer JWTs and puts the caller's identity
// in the request context.
type AuthMiddleware struct {
	tokenManager *auth.TokenManager
	optional     bool
}

// NewAuthMiddleware creates an authentication middleware. When optional
// is true, requests without a token pass through unauthenticated.
func NewAuthMiddleware(tokenManager *auth.TokenManager, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.tokenManager.Validate(parts[1])
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithClaims(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, claims.UserID)
		ctx = observability.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts validated token claims from the request.
func GetClaims(r *http.Request) *auth.Claims {
	claims, ok := r.Context().Value(contextkeys.ClaimsKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID extracts the authenticated user ID, or "" when the request
// is unauthenticated.
func GetUserID(r *http.Request) string {
	return contextkeys.GetUserID(r.Context())
}

// RequireUser guards a handler that cannot run unauthenticated. It
// exists for routes mounted under an optional AuthMiddleware.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r) == "" {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
