package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KEYPROXY_"

// EnvConfigPath names the environment variable pointing at the config file.
const EnvConfigPath = EnvPrefix + "CONFIG"

// Session store kinds.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the runtime configuration of keyproxyctl.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Session SessionConfig `koanf:"session"`
	Account AccountConfig `koanf:"account"`
	AWS     AWSConfig     `koanf:"aws"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig locates the portal backend.
type ServerConfig struct {
	BaseURL string `koanf:"base_url"`
	// Timeout bounds each request; zero means no timeout.
	Timeout time.Duration `koanf:"timeout"`
}

// SessionConfig selects where the session token is persisted.
type SessionConfig struct {
	Store string `koanf:"store"`
	// Path is the YAML file for the file store and the database file for
	// the sqlite store.
	Path  string `koanf:"path"`
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`
}

type AccountConfig struct {
	Email string `koanf:"email"`
}

// AWSConfig is used for SSM reference resolution and KMS probes.
type AWSConfig struct {
	Region   string        `koanf:"region"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `koanf:"level"`
	// Format is text or json
	Format string `koanf:"format"`
}

// Dir is the per-user directory holding config and session files.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keyproxy"
	}
	return filepath.Join(home, ".keyproxy")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func getDefaults() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"base_url": "http://127.0.0.1:5000",
			"timeout":  "0s",
		},
		"session": map[string]interface{}{
			"store": StoreFile,
			"path":  filepath.Join(Dir(), "session.yaml"),
			"dsn":   "",
			"table": "keyproxy_session",
		},
		"account": map[string]interface{}{
			"email": "",
		},
		"aws": map[string]interface{}{
			"region":    "",
			"cache_ttl": "5m",
		},
		"logging": map[string]interface{}{
			"level":  "info",
			"format": "text",
		},
	}
}

// Override adjusts a loaded configuration before it is validated, e.g. from
// command-line flags.
type Override func(*Config)

// Load reads configuration.
// Priority: Overrides > Environment variables > Config file > Defaults
// A missing file at path is not an error.
func Load(path string, overrides ...Override) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(getDefaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to access config file %s: %w", path, err)
		}
	}

	// KEYPROXY_BASE_URL=http://... -> server.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.Session.Path = expandHome(cfg.Session.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	switch s {
	case "base_url", "server_url":
		return "server.base_url"
	case "timeout", "server_timeout":
		return "server.timeout"
	case "session_store":
		return "session.store"
	case "session_path":
		return "session.path"
	case "session_dsn", "pg_dsn":
		return "session.dsn"
	case "session_table":
		return "session.table"
	case "email":
		return "account.email"
	case "aws_region":
		return "aws.region"
	case "aws_cache_ttl":
		return "aws.cache_ttl"
	case "log_level":
		return "logging.level"
	case "log_format":
		return "logging.format"
	default:
		// KEYPROXY_CONFIG and unknown names are not config keys
		return ""
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server.base_url: %q", c.Server.BaseURL)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}

	switch c.Session.Store {
	case StoreFile, StoreSQLite:
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the %s store", c.Session.Store)
		}
	case StorePostgres:
		if c.Session.DSN == "" {
			return fmt.Errorf("session.dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid session store: %s (must be file, sqlite, postgres, or memory)", c.Session.Store)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}
	return nil
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
