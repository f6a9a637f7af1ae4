package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/lanonasis/onasis-gateway/internal/abstraction"
	"github.com/lanonasis/onasis-gateway/internal/adapter"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
)

// MetaToolPrefix scopes the discovery tools in the JSON-RPC surface.
const MetaToolPrefix = "gateway-"

// IsMetaTool reports whether a tools/call name targets the discovery layer.
func IsMetaTool(name string) bool { return strings.HasPrefix(name, MetaToolPrefix) }

// Service implements the five lazy-mode meta-tools. Instead of exposing
// the full tool catalog, agent clients discover capabilities through
// intent/list/describe and execute through the abstraction layer.
type Service struct {
	layer    *abstraction.Layer
	registry *adapter.Registry
}

// New wires the discovery service to the abstraction layer and registry.
func New(layer *abstraction.Layer, registry *adapter.Registry) *Service {
	return &Service{layer: layer, registry: registry}
}

// Tools returns the five meta-tool definitions, in their stable order.
func (s *Service) Tools() []adapter.Tool {
	return []adapter.Tool{
		{
			Name:        "gateway-intent",
			Description: "Match a free-form intent to the most likely category and operation",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"description"},
				"properties": map[string]any{
					"description": map[string]any{"type": "string", "description": "what you want to do"},
				},
			},
		},
		{
			Name:        "gateway-list-categories",
			Description: "List all capability categories with their operations and vendors",
			InputSchema: map[string]any{"type": "object"},
		},
		{
			Name:        "gateway-describe",
			Description: "Describe one operation: input schema and available vendors",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"category", "operation"},
				"properties": map[string]any{
					"category":  map[string]any{"type": "string"},
					"operation": map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "gateway-execute",
			Description: "Execute an operation through the vendor abstraction layer",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"category", "operation"},
				"properties": map[string]any{
					"category":  map[string]any{"type": "string"},
					"operation": map[string]any{"type": "string"},
					"input":     map[string]any{"type": "object"},
					"vendor":    map[string]any{"type": "string", "description": "preferred vendor id"},
				},
			},
		},
		{
			Name:        "gateway-health",
			Description: "Aggregate health of all registered adapters",
			InputSchema: map[string]any{"type": "object"},
		},
	}
}

// Call dispatches one meta-tool invocation.
func (s *Service) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "gateway-intent":
		desc, _ := args["description"].(string)
		if strings.TrimSpace(desc) == "" {
			return nil, gwerrors.ErrValidation.WithMessage("description is required")
		}
		return s.intent(desc), nil

	case "gateway-list-categories":
		return map[string]any{"categories": s.layer.Categories()}, nil

	case "gateway-describe":
		category, _ := args["category"].(string)
		operation, _ := args["operation"].(string)
		return s.layer.Describe(category, operation)

	case "gateway-execute":
		category, _ := args["category"].(string)
		operation, _ := args["operation"].(string)
		vendor, _ := args["vendor"].(string)
		input, _ := args["input"].(map[string]any)
		return s.layer.Execute(ctx, category, operation, input, vendor)

	case "gateway-health":
		overall, perAdapter := s.registry.Health(ctx)
		return map[string]any{
			"status":   overall,
			"stats":    s.registry.Stats(),
			"adapters": perAdapter,
		}, nil
	}

	return nil, gwerrors.ErrToolNotFound.WithMessagef("unknown meta tool %q", name)
}

// IntentMatch is one ranked intent result.
type IntentMatch struct {
	Category  string  `json:"category"`
	Operation string  `json:"operation"`
	Score     float64 `json:"score"`
}

// intent ranks (category, operation) pairs by lexical overlap between the
// free-form description and the category/operation vocabulary.
func (s *Service) intent(description string) map[string]any {
	words := tokenize(description)

	var matches []IntentMatch
	for _, cat := range s.layer.Categories() {
		catVocab := tokenize(cat.Name + " " + cat.Description)
		for _, op := range cat.Operations {
			vocab := append(append([]string(nil), catVocab...), tokenize(humanize(op))...)
			score := overlap(words, vocab)
			if score > 0 {
				matches = append(matches, IntentMatch{Category: cat.Name, Operation: op, Score: score})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > 5 {
		matches = matches[:5]
	}

	out := map[string]any{"matches": matches}
	if len(matches) == 0 {
		out["hint"] = "no category matched; call gateway-list-categories to browse capabilities"
	}
	return out
}

// overlap scores how many query words appear in the vocabulary, normalized
// by the query length.
func overlap(query, vocab []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]bool, len(vocab))
	for _, w := range vocab {
		set[w] = true
	}
	hits := 0
	for _, w := range query {
		if set[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// humanize splits a camelCase operation name into words:
// "initializeTransaction" -> "initialize transaction".
func humanize(op string) string {
	var b strings.Builder
	for i, r := range op {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenize lowercases and splits on non-letter boundaries, dropping stop
// words that would make every description match everything.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "to": true, "of": true,
	"for": true, "with": true, "in": true, "on": true, "my": true, "me": true,
	"want": true, "need": true, "please": true, "via": true, "through": true,
}
