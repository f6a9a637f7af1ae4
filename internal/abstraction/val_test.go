package abstraction

import (
	"context"
	"reflect"
	"strings"
	"testing"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/schema"
)

type fakeRegistry struct {
	calls    int
	lastTool string
	lastArgs map[string]any
	result   any
	err      error
}

func (f *fakeRegistry) CallTool(_ context.Context, toolID string, args map[string]any) (any, error) {
	f.calls++
	f.lastTool = toolID
	f.lastArgs = args
	return f.result, f.err
}

func boundLayer(reg *fakeRegistry) *Layer {
	l := New()
	l.Bind(reg)
	return l
}

func TestPaystackInitializeTransaction(t *testing.T) {
	reg := &fakeRegistry{result: map[string]any{
		"status": true,
		"data":   map[string]any{"authorization_url": "https://checkout.paystack.com/x"},
	}}
	l := boundLayer(reg)

	input := map[string]any{"amount": 5000.0, "email": "a@b.co"}
	res, err := l.Execute(context.Background(), "payment", "initializeTransaction", input, "")
	if err != nil {
		t.Fatal(err)
	}

	if reg.lastTool != "paystack:initialize-transaction" {
		t.Errorf("unexpected tool id %q", reg.lastTool)
	}
	// Major-unit amount is converted to kobo by the vendor transform
	if reg.lastArgs["amount"] != 500000.0 {
		t.Errorf("expected kobo amount 500000, got %v", reg.lastArgs["amount"])
	}
	if reg.lastArgs["currency"] != "NGN" {
		t.Errorf("expected defaulted currency, got %v", reg.lastArgs["currency"])
	}
	ref, _ := reg.lastArgs["reference"].(string)
	if !strings.HasPrefix(ref, "ref_") {
		t.Errorf("expected generated reference, got %q", ref)
	}

	if !res.Success || !res.Metadata.Abstracted {
		t.Errorf("unexpected envelope: %+v", res)
	}
	if res.Metadata.Category != "payment" || res.Metadata.Operation != "initializeTransaction" || res.Metadata.Vendor != "paystack" {
		t.Errorf("unexpected metadata: %+v", res.Metadata)
	}

	// The caller's input stays untouched
	if len(input) != 2 {
		t.Errorf("caller input mutated: %v", input)
	}
}

func TestPaystackAmountConversionAcceptsIntegers(t *testing.T) {
	reg := &fakeRegistry{result: map[string]any{}}
	l := boundLayer(reg)

	// In-process callers pass plain ints; the conversion must accept every
	// numeric shape validation accepts.
	_, err := l.Execute(context.Background(), "payment", "initializeTransaction",
		map[string]any{"amount": 5000, "email": "a@b.co"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if reg.lastArgs["amount"] != 500000.0 {
		t.Errorf("integer amount lost or unconverted: got %v", reg.lastArgs["amount"])
	}
}

func TestVendorPreference(t *testing.T) {
	reg := &fakeRegistry{result: map[string]any{}}
	l := boundLayer(reg)

	_, err := l.Execute(context.Background(), "payment", "initializeTransaction",
		map[string]any{"amount": 100.0, "email": "a@b.co"}, "flutterwave")
	if err != nil {
		t.Fatal(err)
	}
	if reg.lastTool != "flutterwave:initiate-payment" {
		t.Errorf("preference ignored: %q", reg.lastTool)
	}
	if reg.lastArgs["amount"] != 100.0 {
		t.Errorf("flutterwave takes the major unit, got %v", reg.lastArgs["amount"])
	}
	if _, ok := reg.lastArgs["tx_ref"]; !ok {
		t.Error("expected tx_ref in flutterwave payload")
	}
}

func TestUnknownPreferenceFallsBackToDefault(t *testing.T) {
	reg := &fakeRegistry{result: map[string]any{}}
	l := boundLayer(reg)

	res, err := l.Execute(context.Background(), "payment", "verifyTransaction",
		map[string]any{"reference": "ref_1"}, "stripe")
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Vendor != "paystack" {
		t.Errorf("expected default vendor, got %s", res.Metadata.Vendor)
	}
}

func TestUnknownCategoryAndOperation(t *testing.T) {
	reg := &fakeRegistry{}
	l := boundLayer(reg)

	_, err := l.Execute(context.Background(), "teleportation", "beam", nil, "")
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "UNKNOWN_CATEGORY" || ge.Status != 404 {
		t.Errorf("expected 404 UNKNOWN_CATEGORY, got %v", err)
	}

	_, err = l.Execute(context.Background(), "payment", "refundEverything", map[string]any{}, "")
	ge, ok = gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "UNKNOWN_OPERATION" || ge.Status != 404 {
		t.Errorf("expected 404 UNKNOWN_OPERATION, got %v", err)
	}

	if reg.calls != 0 {
		t.Errorf("registry touched on unknown target: %d calls", reg.calls)
	}
}

func TestValidationFailureSkipsRegistry(t *testing.T) {
	reg := &fakeRegistry{}
	l := boundLayer(reg)

	_, err := l.Execute(context.Background(), "payment", "initializeTransaction",
		map[string]any{"amount": "a lot"}, "")
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if reg.calls != 0 {
		t.Error("invalid input reached the registry")
	}
}

func TestOperationNotSupportedByVendor(t *testing.T) {
	reg := &fakeRegistry{}
	l := boundLayer(reg)

	// flutterwave has no listTransactions mapping
	_, err := l.Execute(context.Background(), "payment", "listTransactions", nil, "flutterwave")
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "OPERATION_NOT_SUPPORTED" || ge.Status != 501 {
		t.Fatalf("expected 501 OPERATION_NOT_SUPPORTED, got %v", err)
	}
	if reg.calls != 0 {
		t.Error("unsupported operation reached the registry")
	}
}

func TestNoVendorsConfigured(t *testing.T) {
	reg := &fakeRegistry{}
	l := boundLayer(reg)
	l.add(newCategory("empty", "no vendors yet").
		op("noop", &Operation{Schema: schema.Object(nil)}))

	_, err := l.Execute(context.Background(), "empty", "noop", nil, "")
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "NO_VENDORS" || ge.Status != 503 {
		t.Fatalf("expected 503 NO_VENDORS, got %v", err)
	}
	if reg.calls != 0 {
		t.Error("registry touched with no vendors")
	}
}

func TestDescribeListsOnlyMappedVendors(t *testing.T) {
	l := New()

	d, err := l.Describe("payment", "initializeTransaction")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Vendors, []string{"paystack", "flutterwave"}) {
		t.Errorf("unexpected vendors: %v", d.Vendors)
	}

	d, err = l.Describe("payment", "listTransactions")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Vendors, []string{"paystack"}) {
		t.Errorf("expected only paystack for listTransactions, got %v", d.Vendors)
	}
	if d.InputSchema["type"] != "object" {
		t.Errorf("expected rendered schema, got %v", d.InputSchema)
	}
}

func TestTransformsArePure(t *testing.T) {
	l := New()
	for _, cname := range l.CategoryNames() {
		c := l.categories[cname]
		for _, vid := range c.vendorOrder {
			for opName, m := range c.vendors[vid].Mappings {
				if m.Transform == nil {
					continue
				}
				in := map[string]any{
					"amount": 42.0, "email": "x@y.z", "currency": "NGN",
					"reference": "ref_fixed", "account_number": "0001", "bank_code": "058",
				}
				a := m.Transform(copyMap(in))
				b := m.Transform(copyMap(in))
				if !reflect.DeepEqual(a, b) {
					t.Errorf("%s/%s/%s: transform not deterministic", cname, vid, opName)
				}
			}
		}
	}
}

func TestCategoriesEnumeration(t *testing.T) {
	l := New()
	cats := l.Categories()
	if len(cats) != 9 {
		t.Fatalf("expected 9 categories, got %d", len(cats))
	}
	if cats[0].Name != "payment" || cats[0].DefaultVendor != "paystack" {
		t.Errorf("unexpected first category: %+v", cats[0])
	}
	for _, c := range cats {
		if len(c.Operations) == 0 {
			t.Errorf("category %s has no operations", c.Name)
		}
		if len(c.Vendors) == 0 {
			t.Errorf("category %s has no vendors", c.Name)
		}
	}
}

func TestUnboundLayerFailsClosed(t *testing.T) {
	l := New()
	_, err := l.Execute(context.Background(), "payment", "verifyTransaction",
		map[string]any{"reference": "r"}, "")
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "ADAPTER_REGISTRY_NOT_READY" {
		t.Fatalf("expected ADAPTER_REGISTRY_NOT_READY, got %v", err)
	}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
