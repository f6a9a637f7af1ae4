package abstraction

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/schema"
)

// Transform converts validated canonical input into a vendor-specific
// payload. Transforms are pure: no I/O, no clock, deterministic for a
// given input. They receive the validated copy and must not retain it.
type Transform func(input map[string]any) map[string]any

// Mapping binds one operation to a concrete tool of a vendor's adapter.
type Mapping struct {
	Tool      string
	Transform Transform
}

// Vendor describes one upstream able to serve (part of) a category.
type Vendor struct {
	Adapter  string
	Mappings map[string]Mapping
}

// Operation is a vendor-neutral method of a category.
type Operation struct {
	Description string
	Schema      *schema.Schema
	// Enrich fills non-static defaults (generated references, env-derived
	// callback URLs) on the validated copy before the transform runs.
	Enrich func(input map[string]any)
}

// Category is one abstract capability with an ordered vendor list; the
// first vendor is the default.
type Category struct {
	Name        string
	Description string

	opOrder    []string
	operations map[string]*Operation

	vendorOrder []string
	vendors     map[string]*Vendor
}

// ToolCaller is the registry surface the layer depends on. The registry
// is bound late, after adapter construction.
type ToolCaller interface {
	CallTool(ctx context.Context, toolID string, args map[string]any) (any, error)
}

// Metadata annotates every abstracted result envelope.
type Metadata struct {
	Category   string    `json:"category"`
	Operation  string    `json:"operation"`
	Vendor     string    `json:"vendor"`
	Timestamp  time.Time `json:"timestamp"`
	Abstracted bool      `json:"abstracted"`
}

// Result is the success envelope of an abstracted call.
type Result struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// Layer is the vendor abstraction layer: category → operation → vendor
// mapping with schema validation and input transformation. The tables are
// built once at construction and immutable afterwards.
type Layer struct {
	registry ToolCaller

	order      []string
	categories map[string]*Category

	log *zap.Logger
}

// New builds the layer with the standard category seed.
func New() *Layer {
	l := &Layer{
		categories: map[string]*Category{},
		log:        logging.Global().Named("abstraction"),
	}
	seedCategories(l)
	return l
}

// Bind attaches the adapter registry. Must be called before Execute.
func (l *Layer) Bind(r ToolCaller) { l.registry = r }

// add registers a category during seeding.
func (l *Layer) add(c *Category) {
	l.order = append(l.order, c.Name)
	l.categories[c.Name] = c
}

// Execute performs one abstracted call:
// validate → select vendor → transform → dispatch → wrap.
// The caller's input map is never mutated.
func (l *Layer) Execute(ctx context.Context, category, operation string, input map[string]any, vendorPref string) (*Result, error) {
	cat, ok := l.categories[category]
	if !ok {
		return nil, gwerrors.ErrUnknownCategory.
			WithMessagef("unknown category %q", category).
			WithMeta("available", l.CategoryNames())
	}
	op, ok := cat.operations[operation]
	if !ok {
		return nil, gwerrors.ErrUnknownOperation.
			WithMessagef("category %q has no operation %q", category, operation).
			WithMeta("available", cat.opOrder)
	}

	if input == nil {
		input = map[string]any{}
	}
	validated, err := op.Schema.ValidateAndFill(input)
	if err != nil {
		return nil, err
	}
	if op.Enrich != nil {
		op.Enrich(validated)
	}

	vendorID, vendor, err := cat.selectVendor(vendorPref)
	if err != nil {
		return nil, err
	}
	mapping, ok := vendor.Mappings[operation]
	if !ok {
		return nil, gwerrors.ErrOperationNotSupported.
			WithMessagef("vendor %q does not support %s.%s", vendorID, category, operation)
	}

	payload := validated
	if mapping.Transform != nil {
		payload = mapping.Transform(validated)
	}

	if l.registry == nil {
		return nil, gwerrors.ErrRegistryNotReady.WithMessage("abstraction layer is not bound to a registry")
	}

	toolID := vendor.Adapter + ":" + mapping.Tool
	l.log.Debug("abstracted call",
		zap.String("category", category),
		zap.String("operation", operation),
		zap.String("vendor", vendorID),
		zap.String("tool", toolID))

	data, err := l.registry.CallTool(ctx, toolID, payload)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success: true,
		Data:    data,
		Metadata: Metadata{
			Category:   category,
			Operation:  operation,
			Vendor:     vendorID,
			Timestamp:  time.Now().UTC(),
			Abstracted: true,
		},
	}, nil
}

// selectVendor applies the preference when present, else the first vendor.
func (c *Category) selectVendor(pref string) (string, *Vendor, error) {
	if len(c.vendorOrder) == 0 {
		return "", nil, gwerrors.ErrNoVendors.
			WithMessagef("category %q has no vendors configured", c.Name)
	}
	if pref != "" {
		if v, ok := c.vendors[pref]; ok {
			return pref, v, nil
		}
		// Unknown preference falls back to the default vendor
	}
	id := c.vendorOrder[0]
	return id, c.vendors[id], nil
}

// CategoryNames returns the category names in registration order.
func (l *Layer) CategoryNames() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// CategorySummary is the list-categories view of one category.
type CategorySummary struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Operations    []string `json:"operations"`
	DefaultVendor string   `json:"default_vendor,omitempty"`
	Vendors       []string `json:"vendors"`
}

// Categories enumerates all categories with operations and vendors.
func (l *Layer) Categories() []CategorySummary {
	out := make([]CategorySummary, 0, len(l.order))
	for _, name := range l.order {
		c := l.categories[name]
		s := CategorySummary{
			Name:        c.Name,
			Description: c.Description,
			Operations:  append([]string(nil), c.opOrder...),
			Vendors:     append([]string(nil), c.vendorOrder...),
		}
		if len(c.vendorOrder) > 0 {
			s.DefaultVendor = c.vendorOrder[0]
		}
		out = append(out, s)
	}
	return out
}

// Description is the describe view of one operation.
type Description struct {
	Category    string         `json:"category"`
	Operation   string         `json:"operation"`
	Summary     string         `json:"summary,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
	// Vendors able to serve this operation, default first.
	Vendors []string `json:"vendors"`
}

// Describe returns the client schema and the vendors that map the
// operation. A vendor is listed iff it carries a mapping for it.
func (l *Layer) Describe(category, operation string) (*Description, error) {
	cat, ok := l.categories[category]
	if !ok {
		return nil, gwerrors.ErrUnknownCategory.WithMessagef("unknown category %q", category)
	}
	op, ok := cat.operations[operation]
	if !ok {
		return nil, gwerrors.ErrUnknownOperation.
			WithMessagef("category %q has no operation %q", category, operation)
	}

	vendors := make([]string, 0, len(cat.vendorOrder))
	for _, id := range cat.vendorOrder {
		if _, mapped := cat.vendors[id].Mappings[operation]; mapped {
			vendors = append(vendors, id)
		}
	}

	return &Description{
		Category:    category,
		Operation:   operation,
		Summary:     op.Description,
		InputSchema: op.Schema.JSONSchema(),
		Vendors:     vendors,
	}, nil
}

// MappedAdapters returns the distinct adapter ids referenced by any vendor
// mapping, sorted. The composition root checks each against the registry
// so no mapping can point at an unregistered adapter.
func (l *Layer) MappedAdapters() []string {
	set := map[string]bool{}
	for _, c := range l.categories {
		for _, v := range c.vendors {
			set[v.Adapter] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
