package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/httpclient"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
)

// DefaultDescriptorTTL bounds how stale the derived tool list may get
// between descriptor re-reads.
const DefaultDescriptorTTL = 5 * time.Minute

// slugHeading matches "## slug" / "### `slug`" headings in descriptor files.
var slugHeading = regexp.MustCompile("^#{2,3}\\s+`?([A-Za-z0-9_-]+)`?\\s*$")

// Supabase proxies tool calls to a remote edge-function fleet. Its tool
// list is derived from markdown descriptor documents instead of being
// hardcoded: one tool per function slug, refreshed on a TTL and on
// descriptor file changes.
type Supabase struct {
	*Base
	client *httpclient.Client
	dir    string
	ttl    time.Duration

	mu       sync.Mutex
	loadedAt time.Time
}

// NewSupabase creates the edge-function adapter. dir holds the markdown
// route descriptors; ttl <= 0 uses DefaultDescriptorTTL.
func NewSupabase(id string, client *httpclient.Client, dir string, ttl time.Duration, m *metrics.Collector) *Supabase {
	if ttl <= 0 {
		ttl = DefaultDescriptorTTL
	}
	return &Supabase{
		Base:   NewBase(id, "Supabase Edge Functions", "1.0.0", "infrastructure", m),
		client: client,
		dir:    dir,
		ttl:    ttl,
	}
}

func (s *Supabase) Executable() bool { return true }

// Initialize parses the descriptor directory into the tool table.
func (s *Supabase) Initialize(ctx context.Context) error {
	return s.Refresh()
}

// Refresh re-reads the descriptors unconditionally. Wired to the
// descriptor directory watcher.
func (s *Supabase) Refresh() error {
	tools, err := parseDescriptorDir(s.dir)
	if err != nil {
		return err
	}
	if err := s.SetTools(tools); err != nil {
		return err
	}
	s.mu.Lock()
	s.loadedAt = time.Now()
	s.mu.Unlock()
	s.Log().Info("edge function descriptors loaded", zap.Int("tools", len(tools)))
	return nil
}

// ensureFresh re-parses the descriptors when the TTL has lapsed. A failed
// refresh keeps the previous tool list.
func (s *Supabase) ensureFresh() {
	s.mu.Lock()
	stale := time.Since(s.loadedAt) > s.ttl
	s.mu.Unlock()
	if !stale {
		return
	}
	if err := s.Refresh(); err != nil {
		s.Log().Warn("descriptor refresh failed, keeping previous tools", zap.Error(err))
		s.mu.Lock()
		s.loadedAt = time.Now() // back off until the next TTL lapse
		s.mu.Unlock()
	}
}

// ListTools returns the derived tool list, refreshing it when stale.
func (s *Supabase) ListTools() []Tool {
	s.ensureFresh()
	return s.Base.ListTools()
}

// CallTool forwards the call as POST /functions/v1/<name> with the
// caller's identity headers. The upstream response is returned as-is.
func (s *Supabase) CallTool(ctx context.Context, name string, args map[string]any) (result any, err error) {
	defer func() { s.RecordCall(name, err) }()

	s.ensureFresh()
	if s.Tool(name) == nil {
		return nil, gwerrors.ErrFunctionNotFound.
			WithMessagef("edge function %q is not declared", name).
			WithMeta("adapter", s.ID())
	}
	if s.client == nil {
		return nil, gwerrors.ErrClientMissing.WithMessagef("adapter %s has no upstream client", s.ID())
	}

	body := args
	if body == nil {
		body = map[string]any{}
	}
	return s.client.RequestWithIdentity(ctx,
		httpclient.Endpoint{Path: "/functions/v1/" + name, Method: http.MethodPost},
		httpclient.Options{Body: body})
}

func (s *Supabase) HealthCheck(ctx context.Context) Health {
	detail := map[string]any{"tools": len(s.Base.ListTools())}
	status := "healthy"
	if s.client != nil {
		snap := s.client.Breaker().Snapshot()
		detail["circuit"] = snap.State
		if snap.State != "closed" {
			status = "degraded"
		}
	}
	return Health{Status: status, Detail: detail}
}

// parseDescriptorDir scans dir for markdown files and derives one tool per
// function slug heading. A fenced ```json block directly under a heading is
// taken as the function's input schema.
func parseDescriptorDir(dir string) ([]Tool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var tools []Tool
	seen := map[string]bool{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, t := range parseDescriptor(string(data)) {
			if seen[t.Name] {
				continue // first descriptor wins
			}
			seen[t.Name] = true
			tools = append(tools, t)
		}
	}
	return tools, nil
}

// parseDescriptor extracts tools from one markdown document.
func parseDescriptor(doc string) []Tool {
	lines := strings.Split(doc, "\n")
	var tools []Tool
	var current *Tool
	inFence, fenceIsJSON := false, false
	var fence []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				if fenceIsJSON && current != nil && current.InputSchema == nil {
					var schema map[string]any
					if err := json.Unmarshal([]byte(strings.Join(fence, "\n")), &schema); err == nil {
						current.InputSchema = schema
					}
				}
				fence = nil
				continue
			}
			fence = append(fence, line)
			continue
		}

		if m := slugHeading.FindStringSubmatch(trimmed); m != nil {
			if current != nil {
				tools = append(tools, *current)
			}
			current = &Tool{Name: m[1]}
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			inFence = true
			fenceIsJSON = strings.HasPrefix(trimmed, "```json")
			fence = nil
			continue
		}
		if current != nil && current.Description == "" && trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			current.Description = trimmed
		}
	}
	if current != nil {
		tools = append(tools, *current)
	}
	return tools
}
