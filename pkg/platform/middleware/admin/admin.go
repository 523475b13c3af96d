// Package admin guards the operator-facing routes: claim management and the
// issuer allow-list.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"zkcred/pkg/requestcontext"
)

const (
	TokenHeader = "X-Admin-Token"
	ActorHeader = "X-Admin-Actor-ID"
)

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// expectedToken. The optional X-Admin-Actor-ID is attached to the context so
// lifecycle events name the operator. An empty expectedToken disables the
// check.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`)) //nolint:errcheck // headers already sent
				return
			}

			if actor := r.Header.Get(ActorHeader); actor != "" {
				ctx = requestcontext.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
