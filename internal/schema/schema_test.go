package schema

import (
	"reflect"
	"testing"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
)

func paymentSchema() *Schema {
	min := 1.0
	return Object(map[string]*Schema{
		"amount":   {Type: "number", Minimum: &min},
		"email":    Str("customer email"),
		"currency": Str("ISO currency code").WithDefault("NGN"),
		"channels": {Type: "array", Items: Str("")},
		"metadata": {Type: "object"},
	}, "amount", "email")
}

func TestValidateFillsDefaults(t *testing.T) {
	in := map[string]any{"amount": 5000.0, "email": "a@b.co"}
	out, err := paymentSchema().ValidateAndFill(in)
	if err != nil {
		t.Fatal(err)
	}
	if out["currency"] != "NGN" {
		t.Errorf("expected default currency NGN, got %v", out["currency"])
	}
	if _, ok := in["currency"]; ok {
		t.Error("caller input was mutated")
	}
}

func TestValidateMissingRequired(t *testing.T) {
	_, err := paymentSchema().ValidateAndFill(map[string]any{"amount": 100.0})
	if err == nil {
		t.Fatal("expected error for missing email")
	}
	ge, ok := gwerrors.AsGatewayError(err)
	if !ok || ge.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	cases := []map[string]any{
		{"amount": "5000", "email": "a@b.co"},
		{"amount": 100.0, "email": 42.0},
		{"amount": 100.0, "email": "a@b.co", "channels": "card"},
		{"amount": 100.0, "email": "a@b.co", "metadata": []any{"x"}},
	}
	for i, in := range cases {
		if _, err := paymentSchema().ValidateAndFill(in); err == nil {
			t.Errorf("case %d: expected type error", i)
		}
	}
}

func TestValidateArrayElementTypes(t *testing.T) {
	in := map[string]any{
		"amount":   100.0,
		"email":    "a@b.co",
		"channels": []any{"card", 7.0},
	}
	if _, err := paymentSchema().ValidateAndFill(in); err == nil {
		t.Fatal("expected element type error")
	}
}

func TestValidateObjectItemsRequired(t *testing.T) {
	s := Object(map[string]*Schema{
		"recipients": {
			Type: "array",
			Items: &Schema{
				Type:     "object",
				Required: []string{"account_number"},
			},
		},
	})
	in := map[string]any{
		"recipients": []any{
			map[string]any{"account_number": "0001"},
			map[string]any{"bank_code": "058"},
		},
	}
	if _, err := s.ValidateAndFill(in); err == nil {
		t.Fatal("expected missing required field in array item")
	}
}

func TestValidateEnumAndBounds(t *testing.T) {
	max := 10.0
	s := Object(map[string]*Schema{
		"mode":  Str("").WithEnum("live", "test"),
		"count": {Type: "integer", Maximum: &max},
	})

	if _, err := s.ValidateAndFill(map[string]any{"mode": "staging"}); err == nil {
		t.Error("expected enum violation")
	}
	if _, err := s.ValidateAndFill(map[string]any{"count": 11.0}); err == nil {
		t.Error("expected maximum violation")
	}
	if _, err := s.ValidateAndFill(map[string]any{"count": 2.5}); err == nil {
		t.Error("expected integer violation")
	}
	if _, err := s.ValidateAndFill(map[string]any{"mode": "live", "count": 3.0}); err != nil {
		t.Errorf("expected valid input, got %v", err)
	}
}

func TestValidateIdempotent(t *testing.T) {
	in := map[string]any{"amount": 5000.0, "email": "a@b.co"}
	once, err := paymentSchema().ValidateAndFill(in)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := paymentSchema().ValidateAndFill(once)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("validation not idempotent: %v vs %v", once, twice)
	}
}

func TestJSONSchemaRendering(t *testing.T) {
	doc := paymentSchema().JSONSchema()
	if doc["type"] != "object" {
		t.Errorf("expected object type, got %v", doc["type"])
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatal("expected properties map")
	}
	currency, ok := props["currency"].(map[string]any)
	if !ok || currency["default"] != "NGN" {
		t.Errorf("expected currency default in rendering, got %v", props["currency"])
	}
	req, ok := doc["required"].([]any)
	if !ok || len(req) != 2 {
		t.Errorf("expected 2 required fields, got %v", doc["required"])
	}
}
