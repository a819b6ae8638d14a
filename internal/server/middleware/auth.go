// Package middleware holds the HTTP middleware chain of the API server.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth checks a Bearer token or X-API-Key header against apiKey. Requests
// for which exempt returns true skip the check; alert webhooks authenticate
// with their own HMAC signature. An empty apiKey disables the middleware.
func Auth(apiKey string, exempt func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		want := []byte(apiKey)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || (exempt != nil && exempt(r)) {
				next.ServeHTTP(w, r)
				return
			}
			token := requestToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PublicPaths exempts the health probe, the WebSocket stream and alert
// webhooks from API key auth.
func PublicPaths(r *http.Request) bool {
	p := r.URL.Path
	switch {
	case p == "/api/health", p == "/ws":
		return true
	case r.Method == http.MethodPost && strings.HasPrefix(p, "/api/bots/") && strings.HasSuffix(p, "/alerts"):
		return true
	}
	return false
}

func requestToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
