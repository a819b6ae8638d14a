package middleware

import (
	"net/http"
	"time"
)

// Observer records one finished request.
type Observer interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Instrument reports every request to obs, labelled by the matched mux
// pattern so path IDs do not explode label cardinality.
func Instrument(obs Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if obs == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			obs.ObserveHTTP(r.Method, route, rw.status, time.Since(start))
		})
	}
}
