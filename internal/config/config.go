package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/golang-jwt/jwt/v5"
)

// RateWindow is a fixed-window rate limit.
type RateWindow struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// Config is the gateway configuration. Values come from an optional YAML
// file overlaid with environment variables; env wins.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Auth bridge
	AuthServiceURL string        `yaml:"auth_service_url"`
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	MonitorToken   string        `yaml:"-"` // env only, never from file
	ProjectScope   string        `yaml:"project_scope"`

	// Supabase / edge functions
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"-"` // env only

	// AI routing
	AIRouterURL string `yaml:"ai_router_url"`

	// CORS
	AllowedOrigins        []string `yaml:"allowed_origins"`
	AllowedOriginSuffixes []string `yaml:"allowed_origin_suffixes"`
	AllowLocalhost        bool     `yaml:"allow_localhost"`

	// Rate limits
	APIRateLimit RateWindow `yaml:"api_rate_limit"`
	MCPRateLimit RateWindow `yaml:"mcp_rate_limit"`
	RedisURL     string     `yaml:"redis_url"`

	// Outbound
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`

	// Catalog
	CatalogPath   string `yaml:"catalog_path"`
	ServicesDir   string `yaml:"services_dir"`
	DescriptorDir string `yaml:"descriptor_dir"`

	// Tool exposure mode: "lazy" or "full"
	ToolMode string `yaml:"tool_mode"`

	ExposeErrorMessages bool `yaml:"expose_error_messages"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host:                  "0.0.0.0",
		Port:                  8080,
		LogLevel:              "info",
		AuthServiceURL:        "https://api.lanonasis.com",
		AuthTimeout:           8 * time.Second,
		AllowedOriginSuffixes: []string{"lanonasis.com"},
		AllowLocalhost:        true,
		APIRateLimit:          RateWindow{Max: 100, Window: 15 * time.Minute},
		MCPRateLimit:          RateWindow{Max: 1000, Window: 15 * time.Minute},
		UpstreamTimeout:       30 * time.Second,
		CatalogPath:           "config/catalog.json",
		ServicesDir:           "services",
		DescriptorDir:         "config/functions",
		ToolMode:              "lazy",
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.SupabaseURL == "" && cfg.SupabaseKey != "" {
		if u, err := SupabaseURLFromKey(cfg.SupabaseKey); err == nil {
			cfg.SupabaseURL = u
		}
	}

	if cfg.ToolMode != "lazy" && cfg.ToolMode != "full" {
		return nil, fmt.Errorf("invalid tool_mode %q (want lazy or full)", cfg.ToolMode)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Host, "HOST")
	setInt(&c.Port, "PORT")
	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.AuthServiceURL, "AUTH_SERVICE_URL")
	setDur(&c.AuthTimeout, "AUTH_TIMEOUT")
	setStr(&c.MonitorToken, "MONITOR_TOKEN")
	setStr(&c.ProjectScope, "PROJECT_SCOPE")
	setStr(&c.SupabaseURL, "SUPABASE_URL")
	setStr(&c.SupabaseKey, "SUPABASE_SERVICE_KEY")
	setStr(&c.AIRouterURL, "AI_ROUTER_URL")
	setStr(&c.RedisURL, "REDIS_URL")
	setDur(&c.UpstreamTimeout, "UPSTREAM_TIMEOUT")
	setStr(&c.CatalogPath, "CATALOG_PATH")
	setStr(&c.ServicesDir, "SERVICES_DIR")
	setStr(&c.DescriptorDir, "DESCRIPTOR_DIR")
	setStr(&c.ToolMode, "TOOL_MODE")
	setBool(&c.ExposeErrorMessages, "EXPOSE_ERROR_MESSAGES")
	setBool(&c.AllowLocalhost, "ALLOW_LOCALHOST")
	setInt(&c.APIRateLimit.Max, "API_RATE_LIMIT_MAX")
	setDur(&c.APIRateLimit.Window, "API_RATE_LIMIT_WINDOW")
	setInt(&c.MCPRateLimit.Max, "MCP_RATE_LIMIT_MAX")
	setDur(&c.MCPRateLimit.Window, "MCP_RATE_LIMIT_WINDOW")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("ALLOWED_ORIGIN_SUFFIXES"); v != "" {
		c.AllowedOriginSuffixes = splitCSV(v)
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SupabaseURLFromKey derives the project URL from the `ref` claim of a
// Supabase service key. The key is parsed without verification; it is only
// used as a configuration hint, never as a credential check.
func SupabaseURLFromKey(key string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(key, claims); err != nil {
		return "", fmt.Errorf("parse supabase key: %w", err)
	}
	ref, _ := claims["ref"].(string)
	if ref == "" {
		return "", fmt.Errorf("supabase key has no ref claim")
	}
	return "https://" + ref + ".supabase.co", nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
