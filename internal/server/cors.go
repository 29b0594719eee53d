package server

import (
	"net/http"
	"strings"
)

// allowedOrigin accepts the host's own origin and loopback dev servers.
func allowedOrigin(origin, host string) bool {
	switch {
	case origin == "http://"+host:
		return true
	case strings.HasPrefix(origin, "http://127.0.0.1:"), strings.HasPrefix(origin, "http://localhost:"):
		return true
	}
	return false
}

// corsMiddleware echoes allowed origins back; there is no wildcard since
// requests carry credentials.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if allowedOrigin(origin, r.Host) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
