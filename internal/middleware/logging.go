package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

// loggingResponseWriter captures the status and byte count.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if w.status == 0 {
			w.status = http.StatusOK
		}
		f.Flush()
	}
}

// Logging emits one structured line per finished request and feeds the
// request counters. route labels metrics by surface, not raw path, to
// keep the cardinality bounded.
func Logging(route string, m *metrics.Collector) Middleware {
	log := logging.Global().Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w}

			next.ServeHTTP(lw, r)

			elapsed := time.Since(start)
			status := lw.status
			if status == 0 {
				status = http.StatusOK
			}

			rc := reqctx.FromRequest(r)
			log.Info("request finished",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int64("bytes", lw.bytes),
				zap.Duration("duration", elapsed),
				zap.String("request_id", rc.RequestID),
				zap.String("remote", rc.ForwardedIP))

			if m != nil {
				m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
				m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			}
		})
	}
}
