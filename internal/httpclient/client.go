package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lanonasis/onasis-gateway/internal/circuitbreaker"
	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

// FailureKind classifies one failed upstream attempt.
type FailureKind string

const (
	KindClient    FailureKind = "client"     // 4xx other than 429: caller mistake
	KindRateLimit FailureKind = "rate_limit" // 429: retryable, never trips the breaker
	KindServer    FailureKind = "server"     // 5xx: retryable, counts toward the breaker
	KindNetwork   FailureKind = "network"    // transport error: retryable, counts toward the breaker
)

// Endpoint identifies one upstream operation.
type Endpoint struct {
	Path   string
	Method string
}

// Options carries per-call parameters.
type Options struct {
	Body    any
	Query   url.Values
	Headers map[string]string
}

// Config configures a Client for one upstream service.
type Config struct {
	Service   string
	BaseURL   string
	Auth      config.AuthConfig
	Timeout   time.Duration // per-attempt timeout, default 30s
	MaxRetries int          // total attempts, default 3
	BaseDelay time.Duration // first retry delay, default 500ms; doubles each attempt
	SmoothRPS float64       // optional client-side request smoothing; 0 disables

	Breaker circuitbreaker.Config
	Metrics *metrics.Collector

	// HTTPClient overrides the transport (tests). When nil a client with
	// Timeout is used.
	HTTPClient *http.Client
}

// Client is the resilient HTTP client every real adapter calls through.
// It layers, in order: client-side smoothing, the upstream's advertised
// rate-limit budget, the circuit breaker, and the retry loop.
type Client struct {
	service string
	baseURL string
	auth    config.AuthConfig

	maxRetries int
	baseDelay  time.Duration

	http    *http.Client
	breaker *circuitbreaker.Breaker
	bucket  rateBucket
	limiter *rate.Limiter
	metrics *metrics.Collector
	log     *zap.Logger

	now func() time.Time
}

// New creates a client for one upstream service.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	breakerCfg := cfg.Breaker
	if cfg.Metrics != nil {
		userHook := breakerCfg.OnStateChange
		m := cfg.Metrics
		breakerCfg.OnStateChange = func(service, from, to string) {
			m.SetCircuitState(service, stateCode(to))
			logging.Global().Warn("circuit breaker state change",
				zap.String("service", service),
				zap.String("from", from),
				zap.String("to", to))
			if userHook != nil {
				userHook(service, from, to)
			}
		}
	}

	c := &Client{
		service:    cfg.Service,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       cfg.Auth,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		http:       httpClient,
		breaker:    circuitbreaker.New(cfg.Service, breakerCfg),
		metrics:    cfg.Metrics,
		log:        logging.Global().Named("httpclient").With(zap.String("service", cfg.Service)),
		now:        time.Now,
	}
	if cfg.SmoothRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SmoothRPS), 1)
	}
	return c
}

func stateCode(state string) int {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}

// Service returns the upstream service name.
func (c *Client) Service() string { return c.service }

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.Breaker { return c.breaker }

// RateBudget reports the upstream's advertised remaining budget, when known.
func (c *Client) RateBudget() (remaining int, resetAt time.Time, tracking bool) {
	return c.bucket.snapshot(c.now())
}

// attemptResult is the classified outcome of one outbound attempt.
type attemptResult struct {
	status     int
	kind       FailureKind
	message    string
	body       []byte
	header     http.Header
	retryAfter time.Duration
	err        error // transport error, when kind == KindNetwork
}

func (r *attemptResult) success() bool { return r.err == nil && r.status >= 200 && r.status < 300 }

// Request performs one upstream call with auth injection, rate-budget
// enforcement, breaker protection and retry. It returns the decoded JSON
// response body (or the raw body string when the response is not JSON).
func (c *Client) Request(ctx context.Context, ep Endpoint, opts Options) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, gwerrors.ErrInternal.WithCause(err)
		}
	}

	now := c.now()
	if wait, ok := c.bucket.check(now); !ok {
		if c.metrics != nil {
			c.metrics.RateLimitDropped.WithLabelValues("upstream:" + c.service).Inc()
		}
		return nil, gwerrors.ErrRateLimited.
			WithMessagef("upstream %s rate limit exhausted", c.service).
			WithMeta("service", c.service).
			WithMeta("retry_after_seconds", int(wait.Seconds())+1)
	}

	body, err := marshalBody(opts.Body)
	if err != nil {
		return nil, gwerrors.ErrValidation.WithMessage("request body is not serializable").WithCause(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.Reset()

	var last *attemptResult
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		done, err := c.breaker.Allow()
		if err != nil {
			if c.metrics != nil {
				c.metrics.SetCircuitState(c.service, c.breaker.StateCode())
			}
			return nil, gwerrors.ErrCircuitOpen.
				WithMessagef("service %s is unavailable", c.service).
				WithMeta("service", c.service)
		}

		res := c.attempt(ctx, ep, opts, body)
		last = res

		// Rate-limit and client failures are the caller's or the window's
		// problem, not the upstream's health: report them as successes so
		// they never trip the circuit.
		done(res.success() || res.kind == KindRateLimit || res.kind == KindClient)

		if res.header != nil {
			c.bucket.update(res.header, c.now())
		}

		if res.success() {
			return decodeBody(res.body)
		}
		if res.kind == KindClient {
			break
		}
		if attempt == c.maxRetries {
			break
		}

		delay := bo.NextBackOff()
		if res.kind == KindRateLimit && res.retryAfter > 0 {
			delay = res.retryAfter
		}
		if c.metrics != nil {
			c.metrics.RetriesTotal.WithLabelValues(c.service).Inc()
		}
		c.log.Debug("retrying upstream request",
			zap.String("method", ep.Method),
			zap.String("path", ep.Path),
			zap.Int("attempt", attempt),
			zap.String("kind", string(last.kind)),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil, gwerrors.Wrap(ctx.Err(), http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT",
				fmt.Sprintf("request to %s cancelled", c.service))
		case <-time.After(delay):
		}
	}

	return nil, c.failureError(ep, last)
}

// attempt performs a single outbound request and classifies the outcome.
func (c *Client) attempt(ctx context.Context, ep Endpoint, opts Options, body []byte) *attemptResult {
	u := c.baseURL + ep.Path
	if len(opts.Query) > 0 {
		u += "?" + opts.Query.Encode()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, u, reader)
	if err != nil {
		return &attemptResult{kind: KindNetwork, err: err}
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if err := applyAuth(req, c.auth, body, c.now()); err != nil {
		return &attemptResult{kind: KindClient, status: http.StatusUnauthorized, message: err.Error()}
	}

	start := c.now()
	resp, err := c.http.Do(req)
	elapsed := c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(c.service).Observe(elapsed.Seconds())
	}
	if err != nil {
		c.log.Warn("upstream request failed",
			zap.String("method", ep.Method),
			zap.String("path", ep.Path),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return &attemptResult{kind: KindNetwork, err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))

	res := &attemptResult{status: resp.StatusCode, body: respBody, header: resp.Header}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		res.kind = KindRateLimit
		res.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
	case resp.StatusCode >= 500:
		res.kind = KindServer
	case resp.StatusCode >= 400:
		res.kind = KindClient
	}
	if res.kind != "" {
		res.message = extractErrorMessage(respBody)
		c.log.Warn("upstream error response",
			zap.String("method", ep.Method),
			zap.String("path", ep.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(res.kind)),
			zap.Duration("elapsed", elapsed))
	} else {
		c.log.Debug("upstream request ok",
			zap.String("method", ep.Method),
			zap.String("path", ep.Path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
	}
	return res
}

// failureError converts the final failed attempt into a GatewayError.
func (c *Client) failureError(ep Endpoint, res *attemptResult) *gwerrors.GatewayError {
	if res == nil {
		return gwerrors.ErrInternal.WithMessagef("no attempt made against %s", c.service)
	}

	switch res.kind {
	case KindRateLimit:
		e := gwerrors.ErrRateLimited.
			WithMessagef("upstream %s rate limited the request", c.service).
			WithMeta("service", c.service)
		if res.retryAfter > 0 {
			e = e.WithMeta("retry_after_seconds", int(res.retryAfter.Seconds())+1)
		}
		return e
	case KindClient:
		msg := res.message
		if msg == "" {
			msg = http.StatusText(res.status)
		}
		return gwerrors.New(res.status, "UPSTREAM_ERROR", msg).
			WithMeta("service", c.service).
			WithMeta("upstream_status", res.status)
	case KindNetwork:
		return gwerrors.Wrap(res.err, http.StatusBadGateway, "UPSTREAM_ERROR",
			fmt.Sprintf("request to %s failed", c.service)).
			WithMeta("service", c.service).
			WithMeta("kind", string(KindNetwork))
	default: // KindServer
		msg := res.message
		if msg == "" {
			msg = fmt.Sprintf("upstream %s returned %d", c.service, res.status)
		}
		return gwerrors.New(http.StatusBadGateway, "UPSTREAM_ERROR", msg).
			WithMeta("service", c.service).
			WithMeta("upstream_status", res.status).
			WithMeta("kind", string(KindServer))
	}
}

// RequestWithIdentity forwards the caller's identity headers alongside the
// adapter's own credentials. Used by pass-through adapters (edge functions).
func (c *Client) RequestWithIdentity(ctx context.Context, ep Endpoint, opts Options) (any, error) {
	rc := reqctx.FromContext(ctx)
	merged := make(map[string]string, len(opts.Headers)+4)
	for k, v := range rc.ForwardHeaders() {
		merged[k] = v
	}
	for k, v := range opts.Headers {
		merged[k] = v
	}
	opts.Headers = merged
	return c.Request(ctx, ep, opts)
}

func marshalBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

// decodeBody parses a JSON response, falling back to the raw string for
// non-JSON upstreams. Empty bodies decode to nil.
func decodeBody(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return string(body), nil
	}
	return out, nil
}

// extractErrorMessage digs the human-readable message out of an upstream
// error body, trying the common envelope shapes.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "message", "error", "detail", "errors.0.message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
