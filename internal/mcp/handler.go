package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/adapter"
	"github.com/lanonasis/onasis-gateway/internal/discovery"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/version"
)

// Mode selects the tools/list surface.
type Mode string

const (
	// ModeLazy exposes only the five discovery meta-tools.
	ModeLazy Mode = "lazy"
	// ModeFull enumerates every adapter tool as adapterId:toolName.
	ModeFull Mode = "full"
)

// Handler dispatches the JSON-RPC 2.0 tool protocol on POST /mcp.
type Handler struct {
	mode      Mode
	discovery *discovery.Service
	registry  *adapter.Registry
	log       *zap.Logger
}

// NewHandler creates the dispatcher.
func NewHandler(mode Mode, d *discovery.Service, r *adapter.Registry) *Handler {
	if mode != ModeFull {
		mode = ModeLazy
	}
	return &Handler{mode: mode, discovery: d, registry: r, log: logging.Global().Named("mcp")}
}

// Mode returns the active execution mode.
func (h *Handler) Mode() Mode { return h.mode }

// ServeHTTP handles one JSON-RPC request body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeResponse(w, newError(nil, CodeParseError, "unreadable request body", nil))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, newError(nil, CodeParseError, "invalid JSON", nil))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeResponse(w, newError(req.ID, CodeInvalidRequest, "not a JSON-RPC 2.0 request", nil))
		return
	}

	resp := h.Handle(r.Context(), &req)
	if resp == nil || req.IsNotification() {
		// Notifications expect no response body
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Handle dispatches one request. Notifications return nil.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return newResult(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    "onasis-gateway",
				"version": version.Gateway,
				"mode":    string(h.mode),
			},
		})

	case "notifications/initialized":
		return nil

	case "ping":
		return newResult(req.ID, map[string]any{})

	case "tools/list":
		return h.toolsList(ctx, req)

	case "tools/call":
		return h.toolsCall(ctx, req)
	}

	return newError(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
}

// toolEntry is the wire shape of one tool in tools/list.
type toolEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (h *Handler) toolsList(ctx context.Context, req *Request) *Response {
	var entries []toolEntry
	for _, t := range h.discovery.Tools() {
		entries = append(entries, toToolEntry("", t))
	}

	if h.mode == ModeFull {
		// A listing taken mid-startup would be partial; wait for the
		// registry to finish registering.
		if err := h.registry.WaitReady(ctx); err != nil {
			return toolError(req.ID, err)
		}
		for _, a := range h.registry.List() {
			for _, t := range a.ListTools() {
				entries = append(entries, toToolEntry(a.ID()+":", t))
			}
		}
	}

	return newResult(req.ID, map[string]any{"tools": entries})
}

func toToolEntry(prefix string, t adapter.Tool) toolEntry {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	return toolEntry{Name: prefix + t.Name, Description: t.Description, InputSchema: schema}
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (h *Handler) toolsCall(ctx context.Context, req *Request) *Response {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newError(req.ID, CodeInvalidParams, "invalid tools/call params", nil)
		}
	}
	if params.Name == "" {
		return newError(req.ID, CodeInvalidParams, "tool name is required", nil)
	}

	var (
		result any
		err    error
	)
	switch {
	case discovery.IsMetaTool(params.Name):
		result, err = h.discovery.Call(ctx, params.Name, params.Arguments)
	case h.mode == ModeLazy:
		return newError(req.ID, CodeMethodNotFound,
			"direct tool calls are disabled in lazy mode; use gateway-intent to find a capability and gateway-execute to run it",
			map[string]any{"tool": params.Name})
	default:
		result, err = h.registry.CallTool(ctx, params.Name, params.Arguments)
	}
	if err != nil {
		h.log.Warn("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return toolError(req.ID, err)
	}

	return newResult(req.ID, toolContent(result))
}

// toolContent wraps a tool result in the MCP content envelope.
func toolContent(result any) map[string]any {
	text, err := json.Marshal(result)
	if err != nil {
		text = []byte(`{}`)
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(text)}},
	}
}

// toolError maps gateway error kinds onto JSON-RPC codes.
func toolError(id json.RawMessage, err error) *Response {
	ge := gwerrors.FromError(err)
	code := CodeGenericError
	switch ge.Code {
	case "TOOL_NOT_FOUND", "UNKNOWN_CATEGORY", "UNKNOWN_OPERATION", "FUNCTION_NOT_FOUND":
		code = CodeMethodNotFound
	case "VALIDATION_ERROR":
		code = CodeInvalidParams
	case "INTERNAL_ERROR":
		code = CodeInternalError
	}
	message := ge.Message
	if message == "" {
		message = ge.Code
	}
	data := map[string]any{"code": ge.Code}
	if len(ge.Meta) > 0 {
		data["meta"] = ge.Meta
	}
	return newError(id, code, message, data)
}
