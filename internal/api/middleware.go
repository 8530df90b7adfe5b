package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireOpsToken guards the API with the shared operator token. The
// comparison is constant time so the token cannot be probed byte by byte.
func (s *Server) requireOpsToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opsToken == "" {
			respondError(w, http.StatusServiceUnavailable, "ops token not configured")
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opsToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
