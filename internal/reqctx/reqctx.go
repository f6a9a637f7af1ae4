package reqctx

import (
	"context"
	"net/http"
	"strings"
)

// Context is the per-request record built by the gateway middleware. It
// lives for a single request and is never stored beyond response completion.
type Context struct {
	RequestID     string
	SessionID     string
	Authorization string // full bearer header value, e.g. "Bearer xyz"
	APIKey        string
	ClientID      string
	ProjectScope  string
	ForwardedIP   string
}

type contextKey struct{}

// FromRequest extracts the request context, returning an empty value when
// the middleware has not run (tests, internal calls).
func FromRequest(r *http.Request) *Context {
	return FromContext(r.Context())
}

// FromContext extracts the request context from a context.Context.
func FromContext(ctx context.Context) *Context {
	if rc, ok := ctx.Value(contextKey{}).(*Context); ok {
		return rc
	}
	return &Context{}
}

// WithContext attaches rc to ctx.
func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// Build constructs a Context from the inbound request headers. The request
// id must already be assigned by the request-id middleware.
func Build(r *http.Request, requestID string) *Context {
	rc := &Context{
		RequestID:     requestID,
		SessionID:     r.Header.Get("X-Session-ID"),
		Authorization: r.Header.Get("Authorization"),
		ClientID:      r.Header.Get("client-id"),
		ProjectScope:  r.Header.Get("X-Project-Scope"),
		ForwardedIP:   clientIP(r),
	}
	if rc.APIKey = r.Header.Get("X-API-Key"); rc.APIKey == "" {
		rc.APIKey = r.Header.Get("apikey")
	}
	return rc
}

// BearerToken returns the bare token from the Authorization header, or "".
func (rc *Context) BearerToken() string {
	const prefix = "Bearer "
	if strings.HasPrefix(rc.Authorization, prefix) {
		return rc.Authorization[len(prefix):]
	}
	return ""
}

// ForwardHeaders returns the headers to propagate to an upstream that
// expects the caller's identity (edge functions, auth service).
func (rc *Context) ForwardHeaders() map[string]string {
	h := make(map[string]string, 4)
	if rc.Authorization != "" {
		h["Authorization"] = rc.Authorization
	}
	if rc.APIKey != "" {
		h["apikey"] = rc.APIKey
	}
	if rc.ProjectScope != "" {
		h["X-Project-Scope"] = rc.ProjectScope
	}
	if rc.RequestID != "" {
		h["X-Request-ID"] = rc.RequestID
	}
	return h
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}
	return host
}
