package config

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.APIRateLimit.Max != 100 || cfg.APIRateLimit.Window != 15*time.Minute {
		t.Errorf("unexpected api rate limit: %+v", cfg.APIRateLimit)
	}
	if cfg.MCPRateLimit.Max != 1000 {
		t.Errorf("unexpected mcp rate limit: %+v", cfg.MCPRateLimit)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Errorf("unexpected upstream timeout: %v", cfg.UpstreamTimeout)
	}
	if cfg.AuthTimeout != 8*time.Second {
		t.Errorf("unexpected auth timeout: %v", cfg.AuthTimeout)
	}
	if cfg.ToolMode != "lazy" {
		t.Errorf("expected lazy default mode, got %s", cfg.ToolMode)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\ntool_mode: full\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 {
		t.Errorf("env should win over file: got port %d", cfg.Port)
	}
	if cfg.ToolMode != "full" {
		t.Errorf("file value lost: got %s", cfg.ToolMode)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestInvalidToolMode(t *testing.T) {
	t.Setenv("TOOL_MODE", "eager")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid tool mode")
	}
}

// fakeSupabaseKey builds an unsigned JWT with the given ref claim.
func fakeSupabaseKey(t *testing.T, ref string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]any{"ref": ref, "role": "service_role"})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestSupabaseURLFromKey(t *testing.T) {
	key := fakeSupabaseKey(t, "abcdefghijkl")
	u, err := SupabaseURLFromKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if u != "https://abcdefghijkl.supabase.co" {
		t.Errorf("unexpected url: %s", u)
	}
}

func TestSupabaseURLDerivedOnLoad(t *testing.T) {
	t.Setenv("SUPABASE_SERVICE_KEY", fakeSupabaseKey(t, "projref12345"))
	t.Setenv("SUPABASE_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SupabaseURL != "https://projref12345.supabase.co" {
		t.Errorf("expected derived url, got %q", cfg.SupabaseURL)
	}
}

func TestLoadCatalogJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	doc := `{
		"adapters": [
			{"id": "paystack", "type": "real", "category": "payment", "base_url": "https://api.paystack.co",
			 "auth": {"type": "bearer", "token_env": "PAYSTACK_SECRET_KEY"},
			 "tools": [{"name": "initialize-transaction", "path": "/transaction/initialize", "method": "POST"}]},
			{"id": "stripe", "type": "mock", "toolCount": 12}
		],
		"services": [{"name": "vault", "base_url": "https://vault.internal"}]
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Adapters) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(cat.Adapters))
	}
	if cat.Adapters[0].Auth.Type != AuthBearer {
		t.Errorf("expected bearer auth, got %s", cat.Adapters[0].Auth.Type)
	}
	if !cat.Adapters[1].IsEnabled() {
		t.Error("missing enabled flag must default to true")
	}
	if len(cat.Services) != 1 || cat.Services[0].Name != "vault" {
		t.Errorf("unexpected services: %v", cat.Services)
	}
}

func TestLoadCatalogDuplicateID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	doc := `{"adapters": [{"id": "x", "type": "mock"}, {"id": "x", "type": "mock"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path, ""); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestCatalogFallbackScansServicesDir(t *testing.T) {
	services := t.TempDir()
	adapterDir := filepath.Join(services, "ngrok-api")
	if err := os.MkdirAll(adapterDir, 0o755); err != nil {
		t.Fatal(err)
	}
	desc := `{"type": "real", "category": "infrastructure", "base_url": "https://api.ngrok.com"}`
	if err := os.WriteFile(filepath.Join(adapterDir, "adapter.json"), []byte(desc), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(filepath.Join(services, "missing.json"), services)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Adapters) != 1 || cat.Adapters[0].ID != "ngrok-api" {
		t.Fatalf("expected ngrok-api from scan, got %+v", cat.Adapters)
	}
}

func TestDirWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWatcher(dir, ".md")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.debounce = 20 * time.Millisecond

	fired := make(chan struct{}, 1)
	w.OnChange(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "fns.md"), []byte("### ai-chat\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire")
	}
}

func TestDirWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWatcher(dir, ".md")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.debounce = 20 * time.Millisecond

	fired := make(chan struct{}, 1)
	w.OnChange(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Fatal("watcher fired for ignored extension")
	case <-time.After(200 * time.Millisecond):
	}
}
