package request

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows identity wallets (browser extensions and web wallets) to call the
// wallet-facing routes cross-origin. An empty origin list allows any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:       allowedOrigins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:               600,
		OptionsSuccessStatus: http.StatusNoContent,
	}).Handler
}
