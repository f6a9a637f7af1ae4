package errors

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	ErrUnknownOperation.WithMessage("no such operation").WithRequestID("req-1").WriteJSON(w)

	if w.Code != 404 {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var body struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Code != "UNKNOWN_OPERATION" {
		t.Errorf("expected UNKNOWN_OPERATION, got %s", body.Error.Code)
	}
	if body.Error.Message != "no such operation" {
		t.Errorf("expected message, got %q", body.Error.Message)
	}
	if body.Error.RequestID != "req-1" {
		t.Errorf("expected request id, got %q", body.Error.RequestID)
	}
}

func TestInternalMessageSuppressed(t *testing.T) {
	SetExposeMessages(false)
	w := httptest.NewRecorder()
	ErrInternal.WithMessage("db password wrong").WithRequestID("req-2").WriteJSON(w)

	var body map[string]map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["error"]["message"]; ok {
		t.Error("expected message to be suppressed on 5xx")
	}
	if body["error"]["request_id"] != "req-2" {
		t.Error("request id must always be returned")
	}
}

func TestInternalMessageExposed(t *testing.T) {
	SetExposeMessages(true)
	defer SetExposeMessages(false)

	w := httptest.NewRecorder()
	ErrInternal.WithMessage("boom").WriteJSON(w)

	var body map[string]map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"]["message"] != "boom" {
		t.Errorf("expected exposed message, got %v", body["error"]["message"])
	}
}

func TestBuildersDoNotMutateTemplates(t *testing.T) {
	_ = ErrRateLimited.WithMeta("retry_after_ms", 1500).WithRequestID("x")
	if ErrRateLimited.Meta != nil {
		t.Error("template Meta mutated")
	}
	if ErrRateLimited.RequestID != "" {
		t.Error("template RequestID mutated")
	}
}

func TestAsGatewayErrorUnwraps(t *testing.T) {
	inner := ErrCircuitOpen.WithMessage("upstream ngrok-api")
	wrapped := fmt.Errorf("call failed: %w", inner)

	ge, ok := AsGatewayError(wrapped)
	if !ok {
		t.Fatal("expected to find GatewayError")
	}
	if ge.Code != "CIRCUIT_OPEN" {
		t.Errorf("expected CIRCUIT_OPEN, got %s", ge.Code)
	}
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	ge := FromError(fmt.Errorf("plain failure"))
	if ge.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", ge.Code)
	}
	if ge.Status != 500 {
		t.Errorf("expected 500, got %d", ge.Status)
	}
}
