package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// GatewayError is the single error type that crosses the wire. Every error
// leaving a domain boundary is wrapped exactly once with a stable Code.
type GatewayError struct {
	Status     int            `json:"-"`
	Code       string         `json:"code"`
	Message    string         `json:"message,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	underlying error
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.underlying)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *GatewayError) Unwrap() error {
	return e.underlying
}

// exposeMessages controls whether 5xx error messages are written to clients.
// Off by default; enabled at startup via EXPOSE_ERROR_MESSAGES.
var exposeMessages atomic.Bool

// SetExposeMessages toggles message exposure on internal errors.
func SetExposeMessages(v bool) {
	exposeMessages.Store(v)
}

// WriteJSON writes the error envelope `{"error": {...}}` to the response.
// Messages on 5xx errors are suppressed unless exposure is enabled; the
// request id is always returned.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	out := e
	if e.Status >= 500 && e.Message != "" && !exposeMessages.Load() {
		cp := *e
		cp.Message = ""
		out = &cp
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.Status)
	json.NewEncoder(w).Encode(struct {
		Error *GatewayError `json:"error"`
	}{out})
}

// Common error templates. Use the With* builders to enrich a copy;
// never mutate these in place.
var (
	ErrBadRequest = &GatewayError{Status: http.StatusBadRequest, Code: "BAD_REQUEST"}

	ErrValidation = &GatewayError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR"}

	ErrUnauthorized = &GatewayError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED"}

	ErrForbidden = &GatewayError{Status: http.StatusForbidden, Code: "FORBIDDEN"}

	ErrNotFound = &GatewayError{Status: http.StatusNotFound, Code: "NOT_FOUND"}

	ErrUnknownCategory = &GatewayError{Status: http.StatusNotFound, Code: "UNKNOWN_CATEGORY"}

	ErrUnknownOperation = &GatewayError{Status: http.StatusNotFound, Code: "UNKNOWN_OPERATION"}

	ErrToolNotFound = &GatewayError{Status: http.StatusNotFound, Code: "TOOL_NOT_FOUND"}

	ErrFunctionNotFound = &GatewayError{Status: http.StatusNotFound, Code: "FUNCTION_NOT_FOUND"}

	ErrOperationNotSupported = &GatewayError{Status: http.StatusNotImplemented, Code: "OPERATION_NOT_SUPPORTED"}

	ErrAdapterNotExecutable = &GatewayError{Status: http.StatusNotImplemented, Code: "ADAPTER_NOT_EXECUTABLE"}

	ErrRegistryNotReady = &GatewayError{Status: http.StatusServiceUnavailable, Code: "ADAPTER_REGISTRY_NOT_READY"}

	ErrNoVendors = &GatewayError{Status: http.StatusServiceUnavailable, Code: "NO_VENDORS"}

	ErrRateLimited = &GatewayError{Status: http.StatusTooManyRequests, Code: "RATE_LIMIT_EXCEEDED"}

	ErrCircuitOpen = &GatewayError{Status: http.StatusServiceUnavailable, Code: "CIRCUIT_OPEN"}

	ErrClientMissing = &GatewayError{Status: http.StatusInternalServerError, Code: "CLIENT_MISSING"}

	ErrAuthGatewayUnavailable = &GatewayError{Status: http.StatusBadGateway, Code: "AUTH_GATEWAY_UNAVAILABLE"}

	ErrInternal = &GatewayError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
)

// New creates a GatewayError with the given status and code.
func New(status int, code, message string) *GatewayError {
	return &GatewayError{Status: status, Code: code, Message: message}
}

// Wrap wraps an underlying error under a stable code.
func Wrap(err error, status int, code, message string) *GatewayError {
	return &GatewayError{Status: status, Code: code, Message: message, underlying: err}
}

// WithMessage returns a copy with the message set.
func (e *GatewayError) WithMessage(msg string) *GatewayError {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithMessagef returns a copy with a formatted message.
func (e *GatewayError) WithMessagef(format string, args ...any) *GatewayError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithMeta returns a copy with one metadata key added.
func (e *GatewayError) WithMeta(key string, value any) *GatewayError {
	cp := *e
	cp.Meta = make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		cp.Meta[k] = v
	}
	cp.Meta[key] = value
	return &cp
}

// WithRequestID returns a copy with the request id set.
func (e *GatewayError) WithRequestID(requestID string) *GatewayError {
	cp := *e
	cp.RequestID = requestID
	return &cp
}

// WithCause returns a copy carrying err as the underlying cause.
func (e *GatewayError) WithCause(err error) *GatewayError {
	cp := *e
	cp.underlying = err
	return &cp
}

// AsGatewayError extracts a *GatewayError from err, unwrapping as needed.
func AsGatewayError(err error) (*GatewayError, bool) {
	for err != nil {
		if ge, ok := err.(*GatewayError); ok {
			return ge, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// FromError normalizes any error into a GatewayError, defaulting to
// INTERNAL_ERROR for unrecognized errors.
func FromError(err error) *GatewayError {
	if ge, ok := AsGatewayError(err); ok {
		return ge
	}
	return ErrInternal.WithMessage(err.Error()).WithCause(err)
}
