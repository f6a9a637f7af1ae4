package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/logging"
)

// DefaultKeepalive is the SSE comment interval.
const DefaultKeepalive = 30 * time.Second

// SSEHandler serves GET /mcp: an event stream that announces a session id
// and then keeps the connection warm with comment keepalives. No
// message-based protocol runs over this stream.
type SSEHandler struct {
	keepalive time.Duration
	log       *zap.Logger
}

// NewSSEHandler creates the stream handler. keepalive <= 0 uses the default.
func NewSSEHandler(keepalive time.Duration) *SSEHandler {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &SSEHandler{keepalive: keepalive, log: logging.Global().Named("sse")}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sessionID := uuid.NewString()
	payload, _ := json.Marshal(map[string]string{
		"sessionId":       sessionID,
		"protocolVersion": ProtocolVersion,
	})
	fmt.Fprintf(w, "event: open\ndata: %s\n\n", payload)
	flusher.Flush()

	h.log.Debug("sse session opened", zap.String("session", sessionID))

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug("sse session closed", zap.String("session", sessionID))
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
