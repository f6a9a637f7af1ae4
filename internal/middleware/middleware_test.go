package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := NewChain(tag("first"), tag("second")).Append(tag("third")).Then(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 3 || order[0] != "first" || order[2] != "third" {
		t.Errorf("unexpected order: %v", order)
	}
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	var seen string
	h := NewChain(RequestID()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = reqctx.FromRequest(r).RequestID
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	echoed := rec.Header().Get(RequestIDHeader)
	if echoed == "" || echoed != seen {
		t.Errorf("request id not echoed: header=%q ctx=%q", echoed, seen)
	}
}

func TestRequestIDTrustsInbound(t *testing.T) {
	h := NewChain(RequestID()).Then(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id-7")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "upstream-id-7" {
		t.Errorf("inbound id not preserved: %q", got)
	}
}

func TestDotfileGuard(t *testing.T) {
	var reached bool
	h := NewChain(DotfileGuard()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})

	for _, path := range []string{"/.env", "/.git/config", "/api/.hidden/x"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	if reached {
		t.Error("handler ran for a dotfile path")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if !reached || rec.Code != http.StatusOK {
		t.Error("normal path blocked")
	}
}

func TestCORSPolicy(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:  []string{"https://dashboard.example.com"},
		AllowedSuffixes: []string{"lanonasis.com"},
		AllowLocalhost:  true,
	}
	h := NewChain(CORS(cfg)).Then(okHandler())

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://dashboard.example.com", true},
		{"https://api.lanonasis.com", true},
		{"https://lanonasis.com", true},
		{"https://evil-lanonasis.com", false},
		{"http://localhost:3000", true},
		{"https://attacker.io", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tc.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tc.allowed && got != tc.origin {
			t.Errorf("%s: expected allow, got %q", tc.origin, got)
		}
		if !tc.allowed && got != "" {
			t.Errorf("%s: expected deny, got %q", tc.origin, got)
		}
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	var reached bool
	h := NewChain(CORS(CORSConfig{AllowedSuffixes: []string{"lanonasis.com"}})).
		ThenFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/x", nil)
	req.Header.Set("Origin", "https://app.lanonasis.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || reached {
		t.Errorf("preflight not short-circuited: code=%d reached=%v", rec.Code, reached)
	}
}

func TestRateLimitFixedWindow(t *testing.T) {
	cfg := RateLimitConfig{Scope: "api", Max: 3, Window: time.Minute, Store: NewMemoryStore()}
	h := NewChain(RequestID(), RateLimit(cfg, nil)).Then(okHandler())

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
		req.Header.Set("X-Session-ID", "s1")
		return req
	}

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newReq())
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d unexpectedly limited", i)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("unexpected error code %q", body.Error.Code)
	}
}

func TestRateLimitBucketsAreIndependent(t *testing.T) {
	cfg := RateLimitConfig{Scope: "api", Max: 1, Window: time.Minute, Store: NewMemoryStore()}
	h := NewChain(RequestID(), RateLimit(cfg, nil)).Then(okHandler())

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
		req.Header.Set("X-Session-ID", session)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("alpha") != http.StatusOK || send("beta") != http.StatusOK {
		t.Fatal("independent buckets were coupled")
	}
	if send("alpha") != http.StatusTooManyRequests {
		t.Error("second hit on the same bucket not limited")
	}
}

func TestMemoryStoreWindowReset(t *testing.T) {
	store := NewMemoryStore()
	count, _, err := store.Incr(nil, "k", 10*time.Millisecond)
	if err != nil || count != 1 {
		t.Fatalf("unexpected: %d %v", count, err)
	}
	store.Incr(nil, "k", 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	count, _, _ = store.Incr(nil, "k", 10*time.Millisecond)
	if count != 1 {
		t.Errorf("window did not reset: count=%d", count)
	}
}

func TestBucketKeyStableAndCredentialFree(t *testing.T) {
	rc := &reqctx.Context{SessionID: "s", Authorization: "Bearer tok", APIKey: "key", ForwardedIP: "1.2.3.4"}
	a, b := BucketKey(rc), BucketKey(rc)
	if a != b || len(a) != 16 {
		t.Errorf("unexpected bucket key: %q %q", a, b)
	}
	other := &reqctx.Context{SessionID: "s2", Authorization: "Bearer tok", APIKey: "key", ForwardedIP: "1.2.3.4"}
	if BucketKey(other) == a {
		t.Error("distinct sessions share a bucket")
	}
}
