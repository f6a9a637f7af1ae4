package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

func init() {
	// Batch crypto/rand reads into a pool to avoid a syscall per UUID.
	uuid.EnableRandPool()
}

// RequestIDHeader carries the id on both request and response.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a fresh UUID to every request, echoes it in the
// response header, and installs the per-request context record. Inbound
// ids are trusted when present so traces span gateway hops.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			rc := reqctx.Build(r, requestID)
			next.ServeHTTP(w, r.WithContext(reqctx.WithContext(r.Context(), rc)))
		})
	}
}
