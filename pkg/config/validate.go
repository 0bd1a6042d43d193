package config

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// collectionNamePattern matches names usable as a single URL path segment.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be >= 0, got %d", c.Server.MaxBodySize))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path must start with \"/\", got %q", c.Server.BasePath))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("storage.max_size must be >= 0, got %d", c.Storage.MaxSize))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if rl := c.Auth.RateLimit; rl.Enabled {
		if rl.Default.Reads <= 0 || rl.Default.Writes <= 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limit.default reads and writes must be > 0 when rate limiting is enabled"))
		}
		for _, name := range slices.Sorted(maps.Keys(rl.Tiers)) {
			if b := rl.Tiers[name]; b.Reads < 0 || b.Writes < 0 {
				errs = append(errs, fmt.Errorf("auth.rate_limit.tiers.%s must not be negative", name))
			}
		}
	}

	errs = append(errs, c.validateWorkspaces()...)

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}

func (c *Config) validateWorkspaces() []error {
	var errs []error
	seen := make(map[string]string)
	total := 0

	for i, ws := range c.Workspaces {
		for j, col := range ws.Collections {
			total++
			path := fmt.Sprintf("workspaces[%d].collections[%d]", i, j)
			if !collectionNamePattern.MatchString(col.Name) || col.Name == "." || col.Name == ".." {
				errs = append(errs, fmt.Errorf("%s.name must be a non-empty path segment, got %q", path, col.Name))
				continue
			}
			if prev, dup := seen[col.Name]; dup {
				errs = append(errs, fmt.Errorf("%s.name %q duplicates %s", path, col.Name, prev))
				continue
			}
			seen[col.Name] = path
		}
	}
	if total == 0 {
		errs = append(errs, fmt.Errorf("workspaces must define at least one collection"))
	}
	return errs
}
