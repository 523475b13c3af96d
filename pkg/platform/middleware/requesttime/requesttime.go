// Package requesttime pins a single "now" per HTTP request so claim timestamps,
// session expiry and issued credentials all agree within one call.
package requesttime

import (
	"net/http"
	"time"

	"zkcred/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores it
// in the context. Read it with requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
