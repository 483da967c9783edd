// Package auth authenticates API callers from a bearer access token.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/httputil"
	"splitgroups/pkg/requestcontext"
)

// JWTValidator turns a raw bearer token into caller claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is what the group API needs from a token.
type JWTClaims struct {
	UserID string
	Plan   string
}

var (
	errMissingToken = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header")
	errInvalidToken = dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
)

// RequireAuth rejects requests without a valid bearer token with 401 and
// stores the caller's user ID and plan in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				logger.WarnContext(ctx, "rejected request without bearer token",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, errMissingToken)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err == nil && claims.UserID == "" {
				err = errInvalidToken
			}
			if err != nil {
				logger.WarnContext(ctx, "rejected invalid access token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, errInvalidToken)
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			ctx = requestcontext.WithPlan(ctx, claims.Plan)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
