package discovery

import (
	"context"
	"testing"

	"github.com/lanonasis/onasis-gateway/internal/abstraction"
	"github.com/lanonasis/onasis-gateway/internal/adapter"
	"github.com/lanonasis/onasis-gateway/internal/config"
	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
)

func testService(t *testing.T) *Service {
	t.Helper()
	reg := adapter.NewRegistry(nil)
	mock, err := adapter.NewMock(config.AdapterDescriptor{ID: "paystack", Type: "mock", ToolCount: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(context.Background(), mock, adapter.RegisterOptions{SkipInitialize: true}); err != nil {
		t.Fatal(err)
	}
	reg.MarkReady()

	layer := abstraction.New()
	layer.Bind(reg)
	return New(layer, reg)
}

func TestExactlyFiveMetaTools(t *testing.T) {
	tools := testService(t).Tools()
	if len(tools) != 5 {
		t.Fatalf("expected exactly 5 meta tools, got %d", len(tools))
	}
	want := []string{"gateway-intent", "gateway-list-categories", "gateway-describe", "gateway-execute", "gateway-health"}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tool %d: expected %s, got %s", i, name, tools[i].Name)
		}
	}
}

func TestIntentRanksPaymentFirst(t *testing.T) {
	s := testService(t)
	out, err := s.Call(context.Background(), "gateway-intent",
		map[string]any{"description": "initialize a payment transaction for a customer"})
	if err != nil {
		t.Fatal(err)
	}
	matches := out.(map[string]any)["matches"].([]IntentMatch)
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	if matches[0].Category != "payment" || matches[0].Operation != "initializeTransaction" {
		t.Errorf("unexpected top match: %+v", matches[0])
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("matches not sorted by score")
		}
	}
}

func TestIntentNoMatchGivesHint(t *testing.T) {
	s := testService(t)
	out, err := s.Call(context.Background(), "gateway-intent",
		map[string]any{"description": "zzzz qqqq"})
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if _, ok := m["hint"]; !ok {
		t.Error("expected hint for unmatched intent")
	}
}

func TestIntentRequiresDescription(t *testing.T) {
	s := testService(t)
	_, err := s.Call(context.Background(), "gateway-intent", map[string]any{})
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestListCategories(t *testing.T) {
	s := testService(t)
	out, err := s.Call(context.Background(), "gateway-list-categories", nil)
	if err != nil {
		t.Fatal(err)
	}
	cats := out.(map[string]any)["categories"].([]abstraction.CategorySummary)
	if len(cats) != 9 {
		t.Errorf("expected 9 categories, got %d", len(cats))
	}
}

func TestDescribeThroughMetaTool(t *testing.T) {
	s := testService(t)
	out, err := s.Call(context.Background(), "gateway-describe",
		map[string]any{"category": "payment", "operation": "verifyTransaction"})
	if err != nil {
		t.Fatal(err)
	}
	d := out.(*abstraction.Description)
	if d.Category != "payment" || len(d.Vendors) == 0 {
		t.Errorf("unexpected description: %+v", d)
	}

	_, err = s.Call(context.Background(), "gateway-describe",
		map[string]any{"category": "nope", "operation": "x"})
	if ge, _ := gwerrors.AsGatewayError(err); ge == nil || ge.Code != "UNKNOWN_CATEGORY" {
		t.Errorf("expected UNKNOWN_CATEGORY, got %v", err)
	}
}

func TestExecuteThroughMetaTool(t *testing.T) {
	s := testService(t)
	// paystack is registered as a mock, so execution surfaces
	// ADAPTER_NOT_EXECUTABLE from the registry
	_, err := s.Call(context.Background(), "gateway-execute", map[string]any{
		"category":  "payment",
		"operation": "verifyTransaction",
		"input":     map[string]any{"reference": "ref_1"},
	})
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "ADAPTER_NOT_EXECUTABLE" {
		t.Fatalf("expected ADAPTER_NOT_EXECUTABLE, got %v", err)
	}
}

func TestHealthMetaTool(t *testing.T) {
	s := testService(t)
	out, err := s.Call(context.Background(), "gateway-health", nil)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m["status"] != "healthy" {
		t.Errorf("unexpected status: %v", m["status"])
	}
	stats := m["stats"].(adapter.RegistryStats)
	if stats.Adapters != 1 || stats.Mock != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestIsMetaTool(t *testing.T) {
	if !IsMetaTool("gateway-execute") || IsMetaTool("paystack:initialize-transaction") {
		t.Error("meta tool prefix detection broken")
	}
}
