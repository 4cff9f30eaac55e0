package middleware

import (
	"net/http"
)

// NoStore marks every response as private and uncacheable. Device state
// changes on each write, so shared caches must never hold it.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "private, no-store")
			w.Header().Add("Vary", DeviceIDHeader)
			next.ServeHTTP(w, r)
		})
	}
}
