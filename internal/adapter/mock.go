package adapter

import (
	"context"
	"fmt"

	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
)

// Mock is an adapter registered for discovery only: it contributes tools
// to listings and counts but fails every execution.
type Mock struct {
	*Base
}

// NewMock builds a mock adapter from a catalog descriptor. When the
// descriptor carries no explicit tools, toolCount placeholder tools are
// synthesized so listings and stats stay truthful.
func NewMock(desc config.AdapterDescriptor, m *metrics.Collector) (*Mock, error) {
	base := NewBase(desc.ID, desc.Name, desc.Version, desc.Category, m)
	mock := &Mock{Base: base}

	var tools []Tool
	if len(desc.Tools) > 0 {
		tools = make([]Tool, 0, len(desc.Tools))
		for _, td := range desc.Tools {
			tools = append(tools, Tool{Name: td.Name, Description: td.Description})
		}
	} else {
		tools = make([]Tool, 0, desc.ToolCount)
		for i := 1; i <= desc.ToolCount; i++ {
			tools = append(tools, Tool{
				Name:        fmt.Sprintf("%s-tool-%d", desc.ID, i),
				Description: fmt.Sprintf("placeholder tool %d of %s", i, desc.ID),
			})
		}
	}
	if err := mock.SetTools(tools); err != nil {
		return nil, err
	}
	return mock, nil
}

func (m *Mock) Executable() bool { return false }

func (m *Mock) Initialize(ctx context.Context) error { return nil }

// CallTool always fails: mocks exist for discovery, not execution.
func (m *Mock) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	m.RecordCall(name, gwerrors.ErrAdapterNotExecutable)
	return nil, gwerrors.ErrAdapterNotExecutable.
		WithMessagef("adapter %s is a mock and cannot execute tools", m.ID())
}

func (m *Mock) HealthCheck(ctx context.Context) Health {
	return Health{Status: "healthy", Detail: map[string]any{"mock": true}}
}
