// Package middleware provides HTTP middleware for the Atelier API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthConfig holds API-key authentication settings.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// Auth returns an API-key middleware. Keys arrive as `Authorization:
// Bearer <key>` or `X-API-Key`. Disabled auth passes everything through,
// which is the development default.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				auth := r.Header.Get("Authorization")
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
					key = parts[1]
				}
			}
			if key == "" {
				unauthorized(w, "missing api key")
				return
			}

			for _, known := range cfg.APIKeys {
				if subtle.ConstantTimeCompare([]byte(known), []byte(key)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			unauthorized(w, "invalid api key")
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
