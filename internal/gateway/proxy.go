package gateway

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/authbridge"
	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

// GatewayRouteHeader marks responses that travelled the central proxy.
const GatewayRouteHeader = "X-Gateway-Route"

// AIRouteHeader reports which backend served an ai-chat request.
const AIRouteHeader = "X-AI-Route"

var functionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func httprouterParam(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}

func (s *Server) lookupService(name string) *config.APIService {
	if s.catalog == nil {
		return nil
	}
	for i := range s.catalog.Services {
		if s.catalog.Services[i].Name == name {
			return &s.catalog.Services[i]
		}
	}
	return nil
}

// handleFunctionProxy is the central Supabase edge-function proxy:
// /(api/v1/)?functions/v1/:name. Query strings are preserved, bodies are
// forwarded as JSON (or an empty object), and the response keeps the
// upstream status and content type.
func (s *Server) handleFunctionProxy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")
	if !functionName.MatchString(name) {
		writeError(w, r, gwerrors.ErrValidation.WithMessagef("invalid function name %q", name))
		return
	}
	if s.cfg.SupabaseURL == "" {
		writeError(w, r, gwerrors.New(http.StatusBadGateway, "UPSTREAM_ERROR", "no edge function backend configured"))
		return
	}

	target := strings.TrimRight(s.cfg.SupabaseURL, "/") + "/functions/v1/" + name
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeError(w, r, gwerrors.ErrBadRequest.WithMessage("unreadable request body"))
		return
	}
	if len(body) == 0 && r.Method != http.MethodGet {
		body = []byte(`{}`)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	rc := reqctx.FromRequest(r)
	for k, v := range rc.ForwardHeaders() {
		headers[k] = v
	}
	if headers["apikey"] == "" && s.cfg.SupabaseKey != "" {
		headers["apikey"] = s.cfg.SupabaseKey
	}

	w.Header().Set(GatewayRouteHeader, "central-supabase-proxy")
	s.forward(w, r, r.Method, target, body, headers)
}

// handleServiceProxy transparently forwards /api/services/:name/*path to
// the service's base URL from the catalog. The route is privileged: the
// caller's bearer must verify against the identity service first.
func (s *Server) handleServiceProxy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res := s.auth.Verify(r.Context(), reqctx.FromRequest(r), authbridge.VerifyOptions{})
	if !res.OK {
		writeError(w, r, res.Err)
		return
	}

	svc := s.lookupService(ps.ByName("name"))
	if svc == nil {
		writeError(w, r, gwerrors.ErrNotFound.WithMessagef("unknown service %q", ps.ByName("name")))
		return
	}

	target := strings.TrimRight(svc.BaseURL, "/") + ps.ByName("path")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeError(w, r, gwerrors.ErrBadRequest.WithMessage("unreadable request body"))
		return
	}

	headers := map[string]string{}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		headers["Content-Type"] = ct
	}
	for k, v := range reqctx.FromRequest(r).ForwardHeaders() {
		headers[k] = v
	}

	w.Header().Set(GatewayRouteHeader, "service-proxy:"+svc.Name)
	s.forward(w, r, r.Method, target, body, headers)
}

// handleAIChat tries the primary AI router first and falls back to the
// edge-function backend, stamping which route served the reply.
func (s *Server) handleAIChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeError(w, r, gwerrors.ErrBadRequest.WithMessage("unreadable request body"))
		return
	}
	if len(body) == 0 {
		body = []byte(`{}`)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range reqctx.FromRequest(r).ForwardHeaders() {
		headers[k] = v
	}

	if s.cfg.AIRouterURL != "" {
		resp, err := s.proxyRequest(r, http.MethodPost, s.cfg.AIRouterURL, body, headers)
		if err == nil && resp.StatusCode < 500 {
			w.Header().Set(AIRouteHeader, "ai-router")
			relayResponse(w, resp)
			return
		}
		if err != nil {
			s.log.Warn("ai router unavailable, falling back", zap.Error(err))
		} else {
			resp.Body.Close()
			s.log.Warn("ai router failed, falling back", zap.Int("status", resp.StatusCode))
		}
	}

	if s.cfg.SupabaseURL == "" {
		writeError(w, r, gwerrors.New(http.StatusBadGateway, "UPSTREAM_ERROR", "no ai backend available"))
		return
	}
	if headers["apikey"] == "" && s.cfg.SupabaseKey != "" {
		headers["apikey"] = s.cfg.SupabaseKey
	}
	target := strings.TrimRight(s.cfg.SupabaseURL, "/") + "/functions/v1/ai-chat"
	w.Header().Set(AIRouteHeader, "supabase")
	s.forward(w, r, http.MethodPost, target, body, headers)
}

// proxyRequest performs one outbound proxy call under the inbound
// request's context.
func (s *Server) proxyRequest(r *http.Request, method, target string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.proxyClient.Do(req)
}

// forward relays an outbound call's response to the client, preserving
// status and content type.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, method, target string, body []byte, headers map[string]string) {
	resp, err := s.proxyRequest(r, method, target, body, headers)
	if err != nil {
		s.log.Warn("proxy request failed", zap.String("target", target), zap.Error(err))
		writeError(w, r, gwerrors.New(http.StatusBadGateway, "UPSTREAM_ERROR", "upstream did not respond").WithCause(err))
		return
	}
	relayResponse(w, resp)
}

func relayResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
