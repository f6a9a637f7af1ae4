package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// AuthScheme names a credential injection scheme for an upstream client.
type AuthScheme string

const (
	AuthNone   AuthScheme = "none"
	AuthBearer AuthScheme = "bearer"
	AuthAPIKey AuthScheme = "apikey"
	AuthBasic  AuthScheme = "basic"
	AuthHMAC   AuthScheme = "hmac"
	AuthOAuth2 AuthScheme = "oauth2"
)

// AuthConfig describes how an adapter authenticates against its upstream.
// Secrets are referenced by environment variable name, never stored inline.
type AuthConfig struct {
	Type AuthScheme `json:"type"`

	// apikey scheme
	Header     string `json:"header,omitempty"`      // header name, e.g. "X-API-Key"
	QueryParam string `json:"query_param,omitempty"` // query parameter name (alternative to header)
	KeyEnv     string `json:"key_env,omitempty"`

	// bearer / oauth2 scheme
	TokenEnv string `json:"token_env,omitempty"`

	// basic / hmac scheme
	UserEnv   string `json:"user_env,omitempty"`
	SecretEnv string `json:"secret_env,omitempty"`
	Prefix    string `json:"prefix,omitempty"` // hmac Authorization prefix, e.g. "SBX"
}

// ToolDescriptor declares one tool of a catalog-driven adapter.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Path        string          `json:"path"`
	Method      string          `json:"method"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// AdapterDescriptor is one catalog entry.
type AdapterDescriptor struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Version     string           `json:"version,omitempty"`
	Category    string           `json:"category,omitempty"`
	Type        string           `json:"type"` // "real", "mock", or a factory id like "supabase"
	Source      string           `json:"source,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
	AdapterPath string           `json:"adapterPath,omitempty"`
	ToolCount   int              `json:"toolCount,omitempty"` // mocks only
	BaseURL     string           `json:"base_url,omitempty"`
	Auth        AuthConfig       `json:"auth"`
	Tools       []ToolDescriptor `json:"tools,omitempty"`
}

// IsEnabled treats a missing enabled flag as true.
func (d *AdapterDescriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// APIService is one entry of the optional API-service index used by the
// transparent /api/services proxy.
type APIService struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// Catalog is the immutable configuration snapshot loaded at startup.
type Catalog struct {
	Adapters []AdapterDescriptor `json:"adapters"`
	Services []APIService        `json:"services,omitempty"`
}

// LoadCatalog reads the JSON catalog at path. When the file is absent it
// falls back to scanning servicesDir for per-adapter descriptor files.
func LoadCatalog(path, servicesDir string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return scanServicesDir(servicesDir)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// scanServicesDir builds a catalog from <servicesDir>/*/adapter.json files.
func scanServicesDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("scan services dir %s: %w", dir, err)
	}

	cat := &Catalog{}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		descPath := filepath.Join(dir, name, "adapter.json")
		data, err := os.ReadFile(descPath)
		if err != nil {
			continue // directories without a descriptor are not adapters
		}
		var d AdapterDescriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse %s: %w", descPath, err)
		}
		if d.ID == "" {
			d.ID = name
		}
		cat.Adapters = append(cat.Adapters, d)
	}

	if err := cat.validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Adapters))
	for i := range c.Adapters {
		d := &c.Adapters[i]
		if d.ID == "" {
			return fmt.Errorf("catalog adapter %d has no id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("catalog adapter %q declared twice", d.ID)
		}
		seen[d.ID] = true
		if d.Type == "" {
			d.Type = "real"
		}
		if d.Type == "mock" && d.ToolCount < 0 {
			return fmt.Errorf("catalog adapter %q: negative toolCount", d.ID)
		}
		if d.Auth.Type == "" {
			d.Auth.Type = AuthNone
		}
	}
	return nil
}
