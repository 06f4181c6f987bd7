package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken guards mutating routes with the operator bearer token. It is a
// no-op when no token is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			w.Header().Set("WWW-Authenticate", `Bearer realm="harborplan"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
			return
		}
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if subtle.ConstantTimeCompare([]byte(tok), []byte(s.cfg.APIToken)) != 1 {
			writeProblem(w, http.StatusForbidden, "Forbidden", "invalid token", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
