// Package admin guards operator-only routes.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/requestcontext"
)

// TokenHeader carries the shared admin token.
const TokenHeader = "X-Admin-Token"

// RequireAdminToken guards trail reads. An empty expected token rejects every request.
// Rejections are also logged into the request's audit scope when one is open.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if expectedToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			logger.WarnContext(ctx, "admin token mismatch",
				"request_id", requestcontext.RequestID(ctx),
				"path", r.URL.Path,
			)
			if s, ok := scope.FromContext(ctx); ok {
				s.LogEvent("admin token rejected")
			}
			httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "unauthorized",
				"error_description": "admin token required",
			})
		})
	}
}
