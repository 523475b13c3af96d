package request

import (
	"net/http"
)

// BodyLimit caps request bodies with http.MaxBytesReader. Reads past maxBytes
// fail, which the JSON decoders surface as a bad request. Mount it before any
// handler that reads the body.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
