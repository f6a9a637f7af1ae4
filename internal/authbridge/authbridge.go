package authbridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

// Result is the outcome of one verification.
type Result struct {
	OK      bool
	User    map[string]any
	IsAdmin bool
	// Method is how the caller was verified: "bearer" or "monitor".
	Method string
	// Err carries the failure; its Status is the HTTP status to return.
	Err *gwerrors.GatewayError
}

// Bridge verifies bearer tokens against the external identity service.
// The gateway never validates credentials locally: a token is whatever
// the auth service says it is, within the configured timeout.
type Bridge struct {
	verifyURL    string
	monitorToken string
	client       *http.Client
	log          *zap.Logger
}

// New builds the bridge from gateway configuration.
func New(cfg *config.Config) *Bridge {
	timeout := cfg.AuthTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Bridge{
		verifyURL:    strings.TrimRight(cfg.AuthServiceURL, "/") + "/v1/auth/verify",
		monitorToken: cfg.MonitorToken,
		client:       &http.Client{Timeout: timeout},
		log:          logging.Global().Named("authbridge"),
	}
}

// VerifyOptions tune one verification.
type VerifyOptions struct {
	RequireAdmin bool
	// AllowMonitor accepts the shared monitor token instead of a remote
	// verification. Only operational endpoints set this.
	AllowMonitor bool
}

// Verify checks the caller's bearer token. Timeouts and transport errors
// surface as 502 AUTH_GATEWAY_UNAVAILABLE, never as a pass.
func (b *Bridge) Verify(ctx context.Context, rc *reqctx.Context, opts VerifyOptions) Result {
	token := rc.BearerToken()
	if token == "" {
		return failure(gwerrors.ErrUnauthorized.
			WithMessage("missing bearer token").
			WithRequestID(rc.RequestID))
	}

	if opts.AllowMonitor && b.monitorToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(b.monitorToken)) == 1 {
		return Result{OK: true, IsAdmin: true, Method: "monitor"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.verifyURL, nil)
	if err != nil {
		return failure(gwerrors.ErrInternal.WithCause(err))
	}
	req.Header.Set("Authorization", rc.Authorization)
	if rc.RequestID != "" {
		req.Header.Set("X-Request-ID", rc.RequestID)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Error("auth service unreachable", zap.Error(err), zap.String("request_id", rc.RequestID))
		return failure(gwerrors.ErrAuthGatewayUnavailable.
			WithMessage("identity service did not respond").
			WithRequestID(rc.RequestID).
			WithCause(err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
		// verified below
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return failure(gwerrors.New(resp.StatusCode, "UNAUTHORIZED", "token rejected by identity service").
			WithRequestID(rc.RequestID))
	default:
		b.log.Error("auth service error", zap.Int("status", resp.StatusCode))
		return failure(gwerrors.ErrAuthGatewayUnavailable.
			WithMessagef("identity service returned %d", resp.StatusCode).
			WithRequestID(rc.RequestID))
	}

	var verdict struct {
		User    map[string]any `json:"user"`
		IsAdmin bool           `json:"isAdmin"`
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		return failure(gwerrors.ErrAuthGatewayUnavailable.
			WithMessage("unparsable identity service response").
			WithRequestID(rc.RequestID))
	}

	if opts.RequireAdmin && !verdict.IsAdmin {
		return failure(gwerrors.ErrForbidden.
			WithMessage("admin privileges required").
			WithRequestID(rc.RequestID))
	}

	return Result{OK: true, User: verdict.User, IsAdmin: verdict.IsAdmin, Method: "bearer"}
}

func failure(err *gwerrors.GatewayError) Result {
	return Result{OK: false, Err: err}
}

// Policy is the published route-policy document: all client traffic must
// enter through the central gateway; direct upstream access is out of
// contract.
func Policy(authServiceURL string) map[string]any {
	return map[string]any{
		"policy":  "central-gateway-only",
		"version": "1",
		"summary": "All client traffic must enter via the central gateway. Upstream services must not be called directly.",
		"auth": map[string]any{
			"verifier": authServiceURL + "/v1/auth/verify",
			"schemes":  []string{"bearer"},
		},
		"proxy_routes": []string{
			"/api/services/:name/*",
			"/functions/v1/:name",
			"/api/v1/functions/v1/:name",
			"/api/v1/ai-chat",
			"/mcp",
		},
	}
}
