package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
)

// Tool is one named operation exposed by an adapter.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`

	compiled *jsonschema.Schema
}

// Health is the result of an adapter health probe.
type Health struct {
	Status string         `json:"status"` // "healthy", "degraded", "unhealthy"
	Detail map[string]any `json:"detail,omitempty"`
}

// Stats are monotonic call counters. Concurrent calls may observe each
// other's updates in any interleaving; treat them as approximations.
type Stats struct {
	Calls    uint64     `json:"calls"`
	Errors   uint64     `json:"errors"`
	LastCall *time.Time `json:"last_call,omitempty"`
}

// Adapter is the uniform execution surface over one upstream vendor.
type Adapter interface {
	ID() string
	Name() string
	Version() string
	Category() string
	// Executable reports whether CallTool can succeed. Mocks return false.
	Executable() bool

	// Initialize populates the tool list. Idempotent.
	Initialize(ctx context.Context) error
	ListTools() []Tool
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	HealthCheck(ctx context.Context) Health
	Stats() Stats
}

// Base carries the shared adapter state: identity, the tool table, and
// call statistics. Concrete adapters embed it and install their tools
// during Initialize.
type Base struct {
	id       string
	name     string
	version  string
	category string

	mu    sync.RWMutex
	tools []Tool
	index map[string]*Tool

	calls    atomic.Uint64
	errors   atomic.Uint64
	lastCall atomic.Int64 // unix nanos, 0 when never called

	metrics *metrics.Collector
	log     *zap.Logger
}

// NewBase creates the shared adapter state.
func NewBase(id, name, version, category string, m *metrics.Collector) *Base {
	if name == "" {
		name = id
	}
	if version == "" {
		version = "1.0.0"
	}
	return &Base{
		id:       id,
		name:     name,
		version:  version,
		category: category,
		index:    map[string]*Tool{},
		metrics:  m,
		log:      logging.Global().Named("adapter").With(zap.String("adapter", id)),
	}
}

func (b *Base) ID() string       { return b.id }
func (b *Base) Name() string     { return b.name }
func (b *Base) Version() string  { return b.version }
func (b *Base) Category() string { return b.category }

// SetTools installs the tool table, compiling any declared input schemas.
// Tool names must be unique within the adapter.
func (b *Base) SetTools(tools []Tool) error {
	index := make(map[string]*Tool, len(tools))
	for i := range tools {
		t := &tools[i]
		if t.Name == "" {
			return fmt.Errorf("adapter %s: tool %d has no name", b.id, i)
		}
		if _, dup := index[t.Name]; dup {
			return fmt.Errorf("adapter %s: duplicate tool %q", b.id, t.Name)
		}
		if len(t.InputSchema) > 0 {
			compiled, err := compileSchema(b.id, t.Name, t.InputSchema)
			if err != nil {
				return fmt.Errorf("adapter %s: tool %q schema: %w", b.id, t.Name, err)
			}
			t.compiled = compiled
		}
		index[t.Name] = t
	}

	b.mu.Lock()
	b.tools = tools
	b.index = index
	b.mu.Unlock()
	return nil
}

func compileSchema(adapterID, tool string, doc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("mem://%s/%s.json", adapterID, tool)
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// ListTools returns a copy of the tool table.
func (b *Base) ListTools() []Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Tool, len(b.tools))
	copy(out, b.tools)
	return out
}

// Tool returns the named tool, or nil.
func (b *Base) Tool(name string) *Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index[name]
}

// ValidateArgs checks args against the tool's compiled input schema.
// Tools without a schema accept anything.
func (b *Base) ValidateArgs(t *Tool, args map[string]any) error {
	if t.compiled == nil {
		return nil
	}
	var v any = map[string]any{}
	if args != nil {
		v = args
	}
	if err := t.compiled.Validate(v); err != nil {
		return gwerrors.ErrValidation.
			WithMessagef("tool %s:%s: %v", b.id, t.Name, err).
			WithCause(err)
	}
	return nil
}

// RecordCall updates the call counters and metrics for one tool invocation.
func (b *Base) RecordCall(tool string, err error) {
	b.calls.Add(1)
	b.lastCall.Store(time.Now().UnixNano())
	if b.metrics != nil {
		b.metrics.AdapterCalls.WithLabelValues(b.id, tool).Inc()
	}
	if err != nil {
		b.errors.Add(1)
		if b.metrics != nil {
			b.metrics.AdapterErrors.WithLabelValues(b.id, tool).Inc()
		}
	}
}

// Stats returns the current counters.
func (b *Base) Stats() Stats {
	s := Stats{Calls: b.calls.Load(), Errors: b.errors.Load()}
	if ns := b.lastCall.Load(); ns > 0 {
		t := time.Unix(0, ns)
		s.LastCall = &t
	}
	return s
}

// Log returns the adapter's logger.
func (b *Base) Log() *zap.Logger { return b.log }
