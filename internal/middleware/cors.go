package middleware

import (
	"net"
	"net/http"
	"strings"
)

// CORSConfig controls which origins may call the gateway from a browser.
type CORSConfig struct {
	// AllowedOrigins are matched exactly.
	AllowedOrigins []string
	// AllowedSuffixes admit any origin whose host is the suffix or a
	// subdomain of it (e.g. "lanonasis.com" admits api.lanonasis.com).
	AllowedSuffixes []string
	// AllowLocalhost admits localhost and 127.0.0.1 on any port.
	AllowLocalhost bool
}

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-API-Key, X-Session-ID, X-Project-Scope, X-Request-ID, client-id, apikey"
)

// CORS applies the origin policy and short-circuits preflights.
func CORS(cfg CORSConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(cfg, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(cfg CORSConfig, origin string) bool {
	for _, allowed := range cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	host := originHost(origin)
	if host == "" {
		return false
	}

	for _, suffix := range cfg.AllowedSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}

	if cfg.AllowLocalhost {
		if host == "localhost" || host == "127.0.0.1" || host == "::1" || host == "[::1]" {
			return true
		}
	}
	return false
}

// originHost strips the scheme and port from an Origin header value.
func originHost(origin string) string {
	rest := origin
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if host, _, err := net.SplitHostPort(rest); err == nil {
		return host
	}
	return rest
}
