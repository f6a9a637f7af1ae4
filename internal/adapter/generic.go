package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/httpclient"
)

// Generic is the catalog-driven REST adapter: its whole behavior comes
// from the descriptor's tool list. Adding an upstream operation is a
// catalog change, not a code change.
type Generic struct {
	*Base
	desc   config.AdapterDescriptor
	client *httpclient.Client

	// endpoint per tool name, resolved during Initialize
	endpoints map[string]httpclient.Endpoint
}

// NewGeneric builds a real adapter from a catalog descriptor.
func NewGeneric(desc config.AdapterDescriptor, client *httpclient.Client, base *Base) *Generic {
	return &Generic{Base: base, desc: desc, client: client, endpoints: map[string]httpclient.Endpoint{}}
}

func (g *Generic) Executable() bool { return true }

// Initialize builds the tool table from the descriptor.
func (g *Generic) Initialize(ctx context.Context) error {
	tools := make([]Tool, 0, len(g.desc.Tools))
	endpoints := make(map[string]httpclient.Endpoint, len(g.desc.Tools))
	for _, td := range g.desc.Tools {
		method := strings.ToUpper(td.Method)
		if method == "" {
			method = http.MethodPost
		}
		t := Tool{Name: td.Name, Description: td.Description}
		if len(td.InputSchema) > 0 {
			var doc map[string]any
			if err := json.Unmarshal(td.InputSchema, &doc); err != nil {
				return fmt.Errorf("adapter %s: tool %q input schema: %w", g.ID(), td.Name, err)
			}
			t.InputSchema = doc
		}
		tools = append(tools, t)
		endpoints[td.Name] = httpclient.Endpoint{Path: td.Path, Method: method}
	}
	if err := g.SetTools(tools); err != nil {
		return err
	}
	g.endpoints = endpoints
	return nil
}

// CallTool validates args and dispatches through the resilient client.
// Path templates like /v1/charges/{reference} consume the matching arg;
// remaining args go to the body (or the query for GET/DELETE).
func (g *Generic) CallTool(ctx context.Context, name string, args map[string]any) (result any, err error) {
	defer func() { g.RecordCall(name, err) }()

	tool := g.Tool(name)
	if tool == nil {
		return nil, gwerrors.ErrToolNotFound.WithMessagef("adapter %s has no tool %q", g.ID(), name)
	}
	if g.client == nil {
		return nil, gwerrors.ErrClientMissing.WithMessagef("adapter %s has no upstream client", g.ID())
	}
	if err := g.ValidateArgs(tool, args); err != nil {
		return nil, err
	}

	ep := g.endpoints[name]
	path, remaining, err := expandPath(ep.Path, args)
	if err != nil {
		return nil, err
	}
	ep.Path = path

	opts := httpclient.Options{}
	if ep.Method == http.MethodGet || ep.Method == http.MethodDelete {
		if len(remaining) > 0 {
			q := url.Values{}
			for k, v := range remaining {
				q.Set(k, fmt.Sprint(v))
			}
			opts.Query = q
		}
	} else {
		opts.Body = remaining
	}

	return g.client.Request(ctx, ep, opts)
}

// HealthCheck reports the breaker and rate budget of the upstream client.
func (g *Generic) HealthCheck(ctx context.Context) Health {
	if g.client == nil {
		return Health{Status: "unhealthy", Detail: map[string]any{"reason": "no client"}}
	}
	snap := g.client.Breaker().Snapshot()
	detail := map[string]any{"circuit": snap.State}
	if remaining, resetAt, ok := g.client.RateBudget(); ok {
		detail["rate_remaining"] = remaining
		detail["rate_reset_at"] = resetAt
	}
	status := "healthy"
	if snap.State != "closed" {
		status = "degraded"
	}
	return Health{Status: status, Detail: detail}
}

// expandPath substitutes {param} placeholders from args, returning the
// final path and the args that were not consumed. The caller's map is
// not modified.
func expandPath(path string, args map[string]any) (string, map[string]any, error) {
	remaining := make(map[string]any, len(args))
	for k, v := range args {
		remaining[k] = v
	}
	if !strings.Contains(path, "{") {
		return path, remaining, nil
	}

	var out strings.Builder
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			out.WriteString(path)
			break
		}
		closing := strings.IndexByte(path[open:], '}')
		if closing < 0 {
			return "", nil, gwerrors.ErrInternal.WithMessagef("malformed path template %q", path)
		}
		closing += open
		param := path[open+1 : closing]
		value, ok := remaining[param]
		if !ok {
			return "", nil, gwerrors.ErrValidation.WithMessagef("missing path parameter %q", param)
		}
		out.WriteString(path[:open])
		out.WriteString(url.PathEscape(fmt.Sprint(value)))
		delete(remaining, param)
		path = path[closing+1:]
	}
	return out.String(), remaining, nil
}
