package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/authbridge"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
	"github.com/lanonasis/onasis-gateway/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError stamps the request id onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ge := gwerrors.FromError(err)
	if ge.RequestID == "" {
		ge = ge.WithRequestID(reqctx.FromRequest(r).RequestID)
	}
	ge.WriteJSON(w)
}

// handleManifest serves GET /: the service card with counts and surfaces.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       "onasis-gateway",
		"version":    version.Gateway,
		"components": version.All(),
		"mode":       string(s.mcp.Mode()),
		"adapters":   stats,
		"categories": s.layer.CategoryNames(),
		"endpoints": map[string]string{
			"health":       "/health",
			"metrics":      "/metrics",
			"mcp":          "/mcp",
			"route_policy": "/api/v1/gateway/route-policy",
			"functions":    "/functions/v1/:name",
			"abstraction":  "/api/v1/:category/:operation",
		},
	})
}

// handleHealth serves GET /health with aggregated adapter health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall, adapters := s.registry.Health(r.Context())
	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":   overall,
		"version":  version.Gateway,
		"stats":    s.registry.Stats(),
		"adapters": adapters,
	})
}

func (s *Server) handleRoutePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authbridge.Policy(s.cfg.AuthServiceURL))
}

// handleAbstractedCall serves POST /api/v1/:category/:operation, the REST
// facade over the abstraction layer. The preferred vendor comes from the
// ?vendor query parameter or the X-Vendor header.
func (s *Server) handleAbstractedCall(w http.ResponseWriter, r *http.Request, category, operation string) {
	var input map[string]any
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeError(w, r, gwerrors.ErrBadRequest.WithMessage("unreadable request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			writeError(w, r, gwerrors.ErrBadRequest.WithMessage("request body must be a JSON object"))
			return
		}
	}

	vendor := r.URL.Query().Get("vendor")
	if vendor == "" {
		vendor = r.Header.Get("X-Vendor")
	}

	result, err := s.layer.Execute(r.Context(), category, operation, input, vendor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleServices serves GET /api/services: the proxied API-service index.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services := []serviceEntry{}
	if s.catalog != nil {
		for _, svc := range s.catalog.Services {
			services = append(services, serviceEntry{Name: svc.Name, Proxy: "/api/services/" + svc.Name})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

type serviceEntry struct {
	Name  string `json:"name"`
	Proxy string `json:"proxy"`
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	name := httprouterParam(r, "name")
	svc := s.lookupService(name)
	if svc == nil {
		writeError(w, r, gwerrors.ErrNotFound.WithMessagef("unknown service %q", name))
		return
	}
	writeJSON(w, http.StatusOK, serviceEntry{Name: svc.Name, Proxy: "/api/services/" + svc.Name})
}
