package middleware

import (
	"net/http"
	"strings"
)

// DotfileGuard rejects any path with a dot-prefixed segment (/.env,
// /.git/config) before any handler can touch it.
func DotfileGuard() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, seg := range strings.Split(r.URL.Path, "/") {
				if strings.HasPrefix(seg, ".") {
					http.NotFound(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
