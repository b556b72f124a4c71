package emulator

import "net/http"

// AuthMiddleware returns middleware that validates the `auth` query
// parameter against token. An empty token disables authentication, which
// is the default for local development.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Query().Get("auth") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("Permission denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
