// Package config provides unified configuration for the sense server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (SENSE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/sense/pkg/api"
)

// Config holds all configuration for the sense server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Workspaces    []WorkspaceConfig   `yaml:"workspaces"`
	Properties    map[string]string   `yaml:"properties"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`                // default: 8080
	BasePath          string        `yaml:"base_path"`           // default: "/"
	MaxBodySize       int64         `yaml:"max_body_size"`       // bytes, default: 10 MiB
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"` // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`    // default: 30s
}

// StorageConfig holds collection storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // entries per collection for the memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// Scopes are granted to anonymous callers when type is "none".
	Scopes []string `yaml:"scopes"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject" json:"subject"`
	TenantID    string   `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig holds bearer token validation settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	WriteScope  string        `yaml:"write_scope"` // required on tokens for POST, PUT and DELETE
	Leeway      time.Duration `yaml:"leeway"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig holds per-subject request budgets. Reads (GET, HEAD,
// OPTIONS) and writes are counted separately.
type RateLimitConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Default BudgetConfig            `yaml:"default"` // default: 600 reads, 120 writes
	Tiers   map[string]BudgetConfig `yaml:"tiers"`   // service tier -> budget
}

// BudgetConfig is a per-minute request budget. A zero field in a tier
// inherits the default budget.
type BudgetConfig struct {
	Reads  int `yaml:"reads"`
	Writes int `yaml:"writes"`
}

// WorkspaceConfig describes one workspace of the service document.
type WorkspaceConfig struct {
	Title       string             `yaml:"title"`
	Collections []CollectionConfig `yaml:"collections"`
}

// CollectionConfig describes one served collection.
type CollectionConfig struct {
	Name       string            `yaml:"name"`
	Title      string            `yaml:"title"`
	Accept     []string          `yaml:"accept"`
	WriteScope string            `yaml:"write_scope"`
	Categories *CategoriesConfig `yaml:"categories"`
}

// CategoriesConfig describes the category document of a collection.
type CategoriesConfig struct {
	Fixed  bool     `yaml:"fixed"`
	Scheme string   `yaml:"scheme"`
	Terms  []string `yaml:"terms"`
}

// Document renders the category document. A nil config yields nil.
func (c *CategoriesConfig) Document() *api.Categories {
	if c == nil {
		return nil
	}
	doc := &api.Categories{Scheme: c.Scheme, Fixed: "no"}
	if c.Fixed {
		doc.Fixed = "yes"
	}
	for _, term := range c.Terms {
		doc.Categories = append(doc.Categories, api.Category{Term: term})
	}
	return doc
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "trace", "debug", "info", "warn" or "error", default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			BasePath:          "/",
			MaxBodySize:       10 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				Default: BudgetConfig{Reads: 600, Writes: 120},
			},
		},
		Workspaces: []WorkspaceConfig{{
			Title: "Sense",
			Collections: []CollectionConfig{{
				Name:   "entries",
				Title:  "Entries",
				Accept: []string{api.ContentTypeAtomEntry},
			}},
		}},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
