package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/abstraction"
	"github.com/lanonasis/onasis-gateway/internal/adapter"
	"github.com/lanonasis/onasis-gateway/internal/authbridge"
	"github.com/lanonasis/onasis-gateway/internal/circuitbreaker"
	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/discovery"
	"github.com/lanonasis/onasis-gateway/internal/httpclient"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/mcp"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
	"github.com/lanonasis/onasis-gateway/internal/middleware"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
	"github.com/lanonasis/onasis-gateway/internal/version"
)

// Server is the composition root: it owns the catalog, the adapter
// registry, the abstraction layer, the JSON-RPC surface and the HTTP
// listener.
type Server struct {
	cfg     *config.Config
	catalog *config.Catalog

	metrics   *metrics.Collector
	registry  *adapter.Registry
	layer     *abstraction.Layer
	discovery *discovery.Service
	mcp       *mcp.Handler
	sse       *mcp.SSEHandler
	auth      *authbridge.Bridge

	supabase *adapter.Supabase
	watcher  *config.DirWatcher

	proxyClient *http.Client

	handler http.Handler
	httpSrv *http.Server
	log     *zap.Logger
}

// NewServer wires the components. Adapters are constructed in Run.
func NewServer(cfg *config.Config) *Server {
	gwerrors.SetExposeMessages(cfg.ExposeErrorMessages)
	version.Register("gateway", version.Gateway)

	m := metrics.NewCollector()
	registry := adapter.NewRegistry(m)
	layer := abstraction.New()
	disc := discovery.New(layer, registry)

	s := &Server{
		cfg:       cfg,
		metrics:   m,
		registry:  registry,
		layer:     layer,
		discovery: disc,
		mcp:       mcp.NewHandler(mcp.Mode(cfg.ToolMode), disc, registry),
		sse:       mcp.NewSSEHandler(mcp.DefaultKeepalive),
		auth:      authbridge.New(cfg),
		log:       logging.Global().Named("gateway"),
	}
	s.proxyClient = &http.Client{Timeout: cfg.UpstreamTimeout}
	if cfg.UpstreamTimeout <= 0 {
		s.proxyClient.Timeout = 30 * time.Second
	}
	s.handler = s.buildHandler()
	return s
}

// Handler exposes the full middleware-wrapped handler (tests).
func (s *Server) Handler() http.Handler { return s.handler }

// buildHandler mounts routes and the middleware chain in its fixed order:
// dotfile guard, request id, CORS, rate limit, logging.
func (s *Server) buildHandler() http.Handler {
	router := httprouter.New()
	router.HandleMethodNotAllowed = false
	router.NotFound = http.HandlerFunc(s.handleFallback)

	router.HandlerFunc(http.MethodGet, "/", s.handleManifest)
	router.HandlerFunc(http.MethodGet, "/health", s.handleHealth)
	router.Handler(http.MethodGet, "/metrics", s.metricsHandler())
	router.HandlerFunc(http.MethodGet, "/api/v1/gateway/route-policy", s.handleRoutePolicy)

	router.HandlerFunc(http.MethodGet, "/api/services", s.handleServices)
	router.HandlerFunc(http.MethodGet, "/api/services/:name", s.handleService)
	for _, method := range proxyMethods {
		router.Handle(method, "/api/services/:name/*path", s.handleServiceProxy)
		router.Handle(method, "/functions/v1/:name", s.handleFunctionProxy)
		router.Handle(method, "/api/v1/functions/v1/:name", s.handleFunctionProxy)
	}

	router.HandlerFunc(http.MethodPost, "/api/v1/ai-chat", s.handleAIChat)

	router.Handler(http.MethodPost, "/mcp", s.mcp)
	router.Handler(http.MethodGet, "/mcp", s.sse)

	store := s.rateLimitStore()
	base := middleware.NewChain(
		middleware.DotfileGuard(),
		middleware.RequestID(),
		middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:  s.cfg.AllowedOrigins,
			AllowedSuffixes: s.cfg.AllowedOriginSuffixes,
			AllowLocalhost:  s.cfg.AllowLocalhost,
		}),
		s.scopedRateLimit(store),
		middleware.Logging("gateway", s.metrics),
	)
	return base.Then(router)
}

var proxyMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete,
}

// metricsHandler serves the exposition endpoint. With a monitor token
// configured, callers must present either that token or a bearer the
// identity service accepts; without one the endpoint stays open for
// in-cluster scraping.
func (s *Server) metricsHandler() http.Handler {
	inner := s.metrics.Handler()
	if s.cfg.MonitorToken == "" {
		return inner
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := s.auth.Verify(r.Context(), reqctx.FromRequest(r), authbridge.VerifyOptions{AllowMonitor: true})
		if !res.OK {
			writeError(w, r, res.Err)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

// scopedRateLimit applies the /api/* and /mcp windows from one middleware
// so the scope is chosen per request path.
func (s *Server) scopedRateLimit(store middleware.Store) middleware.Middleware {
	api := middleware.RateLimit(middleware.RateLimitConfig{
		Scope: "api", Max: s.cfg.APIRateLimit.Max, Window: s.cfg.APIRateLimit.Window, Store: store,
	}, s.metrics)
	mcpLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Scope: "mcp", Max: s.cfg.MCPRateLimit.Max, Window: s.cfg.MCPRateLimit.Window, Store: store,
	}, s.metrics)

	return func(next http.Handler) http.Handler {
		apiLimited := api(next)
		mcpLimited := mcpLimit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/mcp":
				mcpLimited.ServeHTTP(w, r)
			case len(r.URL.Path) >= 5 && r.URL.Path[:5] == "/api/":
				apiLimited.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (s *Server) rateLimitStore() middleware.Store {
	if s.cfg.RedisURL != "" {
		store, err := middleware.NewRedisStore(s.cfg.RedisURL)
		if err == nil {
			s.log.Info("rate limiting via redis")
			return store
		}
		s.log.Warn("redis unavailable, falling back to in-memory rate limiting", zap.Error(err))
	}
	return middleware.NewMemoryStore()
}

// Run starts the gateway: catalog load, adapter construction, readiness,
// then the listener. It blocks until ctx is cancelled and then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.initAdapters(ctx); err != nil {
		return err
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening",
			zap.String("addr", s.cfg.Addr()),
			zap.String("mode", string(s.mcp.Mode())),
			zap.String("version", version.Gateway))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	if s.watcher != nil {
		s.watcher.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// initAdapters loads the catalog, constructs every adapter in parallel,
// binds the abstraction layer and opens the readiness gate.
func (s *Server) initAdapters(ctx context.Context) error {
	catalog, err := config.LoadCatalog(s.cfg.CatalogPath, s.cfg.ServicesDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	s.catalog = catalog

	var toRegister []adapter.Adapter
	for _, desc := range catalog.Adapters {
		if !desc.IsEnabled() {
			s.log.Info("adapter disabled by catalog", zap.String("adapter", desc.ID))
			continue
		}
		a, err := s.adapterFromDescriptor(desc)
		if err != nil {
			return fmt.Errorf("adapter %s: %w", desc.ID, err)
		}
		toRegister = append(toRegister, a)
	}
	if s.cfg.SupabaseURL != "" && s.supabase == nil {
		toRegister = append(toRegister, s.supabaseAdapter())
	}

	if err := s.registry.RegisterAll(ctx, toRegister); err != nil {
		return fmt.Errorf("adapter init: %w", err)
	}
	s.watchDescriptors()

	// Every adapter referenced by a vendor mapping must resolve; absent
	// ones get a discovery-only mock so abstraction listings stay truthful.
	for _, id := range s.layer.MappedAdapters() {
		if s.registry.Adapter(id) != nil {
			continue
		}
		s.log.Warn("vendor mapping references unregistered adapter, mocking", zap.String("adapter", id))
		if err := s.registry.RegisterMock(ctx, config.AdapterDescriptor{ID: id, Type: "mock"}); err != nil {
			return err
		}
	}

	s.layer.Bind(s.registry)
	s.registry.MarkReady()

	stats := s.registry.Stats()
	s.log.Info("adapters ready",
		zap.Int("adapters", stats.Adapters),
		zap.Int("real", stats.Real),
		zap.Int("mock", stats.Mock),
		zap.Int("tools", stats.Tools))
	return nil
}

// adapterFromDescriptor constructs (without initializing) the adapter a
// catalog entry describes.
func (s *Server) adapterFromDescriptor(desc config.AdapterDescriptor) (adapter.Adapter, error) {
	switch desc.Type {
	case "mock":
		return adapter.NewMock(desc, s.metrics)
	case "supabase":
		return s.supabaseAdapter(), nil
	default:
		client := s.newUpstreamClient(desc.ID, desc.BaseURL, desc.Auth)
		base := adapter.NewBase(desc.ID, desc.Name, desc.Version, desc.Category, s.metrics)
		return adapter.NewGeneric(desc, client, base), nil
	}
}

// supabaseAdapter constructs the edge-function adapter at most once,
// whether it enters via a catalog entry or via SUPABASE_URL alone.
func (s *Server) supabaseAdapter() *adapter.Supabase {
	if s.supabase == nil {
		client := s.newUpstreamClient("supabase", s.cfg.SupabaseURL, config.AuthConfig{
			Type: config.AuthAPIKey, Header: "apikey", KeyEnv: "SUPABASE_SERVICE_KEY",
		})
		s.supabase = adapter.NewSupabase("supabase", client, s.cfg.DescriptorDir, adapter.DefaultDescriptorTTL, s.metrics)
	}
	return s.supabase
}

// watchDescriptors triggers a tool-list rebuild when descriptor files
// change, so new edge functions appear without a restart.
func (s *Server) watchDescriptors() {
	if s.cfg.DescriptorDir == "" || s.supabase == nil {
		return
	}
	w, err := config.NewDirWatcher(s.cfg.DescriptorDir, ".md")
	if err != nil {
		s.log.Warn("descriptor watcher unavailable", zap.Error(err))
		return
	}
	w.OnChange(func() {
		if err := s.supabase.Refresh(); err != nil {
			s.log.Warn("descriptor refresh failed", zap.Error(err))
		}
	})
	if err := w.Start(); err != nil {
		s.log.Warn("descriptor watcher not started", zap.Error(err))
		w.Stop()
		return
	}
	s.watcher = w
}

func (s *Server) newUpstreamClient(service, baseURL string, auth config.AuthConfig) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Service: service,
		BaseURL: baseURL,
		Auth:    auth,
		Timeout: s.cfg.UpstreamTimeout,
		Breaker: circuitbreaker.Config{},
		Metrics: s.metrics,
	})
}

// abstractedPath matches POST /api/v1/:category/:operation for the
// abstraction facade. Registered routes win; this only sees the rest.
var abstractedPath = regexp.MustCompile(`^/api/v1/([a-z][a-z0-9-]*)/([A-Za-z][A-Za-z0-9]*)$`)

// handleFallback serves the abstraction facade and JSON 404s for
// everything else.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if m := abstractedPath.FindStringSubmatch(r.URL.Path); m != nil && r.Method == http.MethodPost {
		s.handleAbstractedCall(w, r, m[1], m[2])
		return
	}
	writeError(w, r, gwerrors.ErrNotFound.WithMessagef("no route for %s %s", r.Method, r.URL.Path))
}
