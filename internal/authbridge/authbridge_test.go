package authbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lanonasis/onasis-gateway/internal/config"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

func bridgeFor(t *testing.T, handler http.HandlerFunc, monitorToken string) *Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&config.Config{
		AuthServiceURL: srv.URL,
		AuthTimeout:    time.Second,
		MonitorToken:   monitorToken,
	})
}

func bearerCtx(token string) *reqctx.Context {
	return &reqctx.Context{Authorization: "Bearer " + token, RequestID: "req-1"}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	var gotAuth string
	b := bridgeFor(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"user":{"id":"u1"},"isAdmin":false}`))
	}, "")

	res := b.Verify(context.Background(), bearerCtx("tok"), VerifyOptions{})
	if !res.OK || res.Method != "bearer" {
		t.Fatalf("expected pass, got %+v", res)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("token not forwarded: %q", gotAuth)
	}
	if res.User["id"] != "u1" {
		t.Errorf("unexpected user: %v", res.User)
	}
}

func TestVerifyMissingBearer(t *testing.T) {
	b := bridgeFor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("remote verify called without a token")
	}, "")

	res := b.Verify(context.Background(), &reqctx.Context{}, VerifyOptions{})
	if res.OK || res.Err == nil || res.Err.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", res)
	}
}

func TestVerifyRejectedToken(t *testing.T) {
	b := bridgeFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "")

	res := b.Verify(context.Background(), bearerCtx("bad"), VerifyOptions{})
	if res.OK || res.Err.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", res)
	}
}

func TestVerifyAdminRequired(t *testing.T) {
	b := bridgeFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"u1"},"isAdmin":false}`))
	}, "")

	res := b.Verify(context.Background(), bearerCtx("tok"), VerifyOptions{RequireAdmin: true})
	if res.OK || res.Err.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", res)
	}
}

func TestVerifyTimeoutIsNeverAPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	b := New(&config.Config{AuthServiceURL: srv.URL, AuthTimeout: 20 * time.Millisecond})

	res := b.Verify(context.Background(), bearerCtx("tok"), VerifyOptions{})
	if res.OK {
		t.Fatal("timeout treated as a pass")
	}
	if res.Err.Status != http.StatusBadGateway || res.Err.Code != "AUTH_GATEWAY_UNAVAILABLE" {
		t.Errorf("expected 502 AUTH_GATEWAY_UNAVAILABLE, got %+v", res.Err)
	}
}

func TestVerifyUpstreamErrorIs502(t *testing.T) {
	b := bridgeFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, "")

	res := b.Verify(context.Background(), bearerCtx("tok"), VerifyOptions{})
	if res.OK || res.Err.Code != "AUTH_GATEWAY_UNAVAILABLE" {
		t.Fatalf("expected AUTH_GATEWAY_UNAVAILABLE, got %+v", res)
	}
}

func TestMonitorTokenBypass(t *testing.T) {
	var remoteCalled bool
	b := bridgeFor(t, func(w http.ResponseWriter, r *http.Request) {
		remoteCalled = true
		w.WriteHeader(http.StatusUnauthorized)
	}, "monitor-secret")

	// Allowed only when the endpoint opts in
	res := b.Verify(context.Background(), bearerCtx("monitor-secret"), VerifyOptions{AllowMonitor: true})
	if !res.OK || res.Method != "monitor" || !res.IsAdmin {
		t.Fatalf("expected monitor bypass, got %+v", res)
	}
	if remoteCalled {
		t.Error("monitor token still hit the remote verifier")
	}

	// Without the opt-in the token goes remote and fails
	res = b.Verify(context.Background(), bearerCtx("monitor-secret"), VerifyOptions{})
	if res.OK {
		t.Fatal("monitor token accepted on a non-operational endpoint")
	}
}

func TestPolicyDocument(t *testing.T) {
	doc := Policy("https://api.lanonasis.com")
	if doc["policy"] != "central-gateway-only" {
		t.Errorf("unexpected policy: %v", doc["policy"])
	}
	routes := doc["proxy_routes"].([]string)
	if len(routes) == 0 {
		t.Error("expected proxy routes")
	}
}
