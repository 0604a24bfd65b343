package httpserver

import (
	"net/http"

	"github.com/pairlink/signaling-broker/internal/origin"
)

// originMiddleware enforces the allowed-origin policy for browser requests
// and answers CORS preflights. Requests without an Origin header (curl,
// health probes, server-to-server) pass through untouched.
func (s *Server) originMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			originHeader := r.Header.Get("Origin")
			if originHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			normalized, originHost, ok := origin.Normalize(originHeader)
			if !ok || !origin.IsAllowed(normalized, originHost, r.Host, s.cfg.AllowedOrigins) {
				s.log.Warn("rejecting disallowed origin",
					"origin", originHeader,
					"host", r.Host,
					"path", r.URL.Path,
				)
				WriteJSON(w, http.StatusForbidden, map[string]any{"error": "Origin not allowed"})
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", originHeader)
			// Safe alongside credentials because the origin is echoed back
			// after the allowlist check, never "*".
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
