package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// authMiddleware accepts "Authorization: Bearer <token>" or the raw token.
// When allowTicket is set a single-use ?ticket= from /api/ws-ticket also
// passes, since browsers cannot set headers on WebSocket upgrades. Tokens in
// the query string are never accepted.
func (s *Server) authMiddleware(allowTicket bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			writeAPIError(w, http.StatusInternalServerError, "auth_misconfigured", "server has no auth token configured", "start logbuf-host with --token or --token-file")
			return
		}
		if s.tokenOK(r.Header.Get("Authorization")) {
			next.ServeHTTP(w, r)
			return
		}
		if allowTicket {
			if t := r.URL.Query().Get("ticket"); t != "" && s.tickets.Consume(t, time.Now()) {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token", "")
	})
}

func (s *Server) tokenOK(header string) bool {
	got := strings.TrimSpace(header)
	if got == "" {
		return false
	}
	if len(got) > 7 && strings.EqualFold(got[:7], "bearer ") {
		got = strings.TrimSpace(got[7:])
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}
