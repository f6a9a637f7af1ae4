package adapter

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
)

// RegisterOptions tune a single Register call.
type RegisterOptions struct {
	// SkipInitialize registers the adapter without calling Initialize
	// (the caller has already done so, or will).
	SkipInitialize bool
}

// RegistryStats summarizes the registry for manifests and health.
type RegistryStats struct {
	Adapters int `json:"adapters"`
	Real     int `json:"real"`
	Mock     int `json:"mock"`
	Tools    int `json:"tools"`
}

// Registry is the single point of adapter lookup and execution. Writes
// happen during warm-up; after MarkReady it is read-mostly.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	adapters map[string]Adapter

	readyOnce sync.Once
	ready     chan struct{}

	metrics *metrics.Collector
	log     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(m *metrics.Collector) *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		ready:    make(chan struct{}),
		metrics:  m,
		log:      logging.Global().Named("registry"),
	}
}

// Register adds an adapter, initializing it unless opts.SkipInitialize.
// A duplicate id replaces the previous adapter with a warning.
func (r *Registry) Register(ctx context.Context, a Adapter, opts RegisterOptions) error {
	if !opts.SkipInitialize {
		if err := a.Initialize(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, exists := r.adapters[a.ID()]; exists {
		r.log.Warn("replacing already registered adapter", zap.String("adapter", a.ID()))
	} else {
		r.order = append(r.order, a.ID())
	}
	r.adapters[a.ID()] = a
	r.mu.Unlock()

	r.log.Info("adapter registered",
		zap.String("adapter", a.ID()),
		zap.Bool("executable", a.Executable()),
		zap.Int("tools", len(a.ListTools())))
	return nil
}

// RegisterMock adds a discovery-only adapter from a catalog descriptor.
func (r *Registry) RegisterMock(ctx context.Context, desc config.AdapterDescriptor) error {
	mock, err := NewMock(desc, r.metrics)
	if err != nil {
		return err
	}
	return r.Register(ctx, mock, RegisterOptions{})
}

// RegisterAll constructs and registers every adapter produced by build,
// in parallel. The first failure aborts the remaining registrations.
func (r *Registry) RegisterAll(ctx context.Context, adapters []Adapter) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			return r.Register(ctx, a, RegisterOptions{})
		})
	}
	return g.Wait()
}

// MarkReady opens the readiness gate. Registrations may still happen
// afterwards (hot catalog refresh) but callers no longer block.
func (r *Registry) MarkReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// WaitReady blocks until the registry is ready or the context expires.
func (r *Registry) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return gwerrors.ErrRegistryNotReady.
			WithMessage("adapter registry is still initializing").
			WithCause(ctx.Err())
	}
}

// Adapter returns the adapter with the given id, or nil.
func (r *Registry) Adapter(id string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// List returns the registered adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// CallTool dispatches "adapterId:toolName" after the readiness gate. The
// tool id splits on the first colon only; tool names may contain colons.
func (r *Registry) CallTool(ctx context.Context, toolID string, args map[string]any) (any, error) {
	if err := r.WaitReady(ctx); err != nil {
		return nil, err
	}

	adapterID, toolName, found := strings.Cut(toolID, ":")
	if !found || adapterID == "" || toolName == "" {
		return nil, gwerrors.ErrToolNotFound.
			WithMessagef("tool id %q is not of the form adapter:tool", toolID)
	}

	a := r.Adapter(adapterID)
	if a == nil {
		return nil, gwerrors.ErrToolNotFound.WithMessagef("unknown adapter %q", adapterID)
	}
	return a.CallTool(ctx, toolName, args)
}

// Stats returns registry totals.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RegistryStats{Adapters: len(r.order)}
	for _, id := range r.order {
		a := r.adapters[id]
		if a.Executable() {
			s.Real++
		} else {
			s.Mock++
		}
		s.Tools += len(a.ListTools())
	}
	return s
}

// Health probes every adapter and aggregates: unhealthy if any adapter is
// unhealthy, degraded if any is degraded, healthy otherwise.
func (r *Registry) Health(ctx context.Context) (string, map[string]Health) {
	adapters := r.List()
	perAdapter := make(map[string]Health, len(adapters))
	overall := "healthy"
	for _, a := range adapters {
		h := a.HealthCheck(ctx)
		perAdapter[a.ID()] = h
		switch h.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}
	return overall, perAdapter
}
