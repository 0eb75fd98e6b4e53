package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.Server.BaseURL)
	assert.Zero(t, cfg.Server.Timeout)
	assert.Equal(t, config.StoreFile, cfg.Session.Store)
	assert.Equal(t, filepath.Join(config.Dir(), "session.yaml"), cfg.Session.Path)
	assert.Equal(t, "keyproxy_session", cfg.Session.Table)
	assert.Equal(t, 5*time.Minute, cfg.AWS.CacheTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  base_url: https://portal.example.com
  timeout: 15s
session:
  store: memory
account:
  email: ops@example.com
logging:
  level: debug
`), 0o600))
	t.Setenv("KEYPROXY_LOG_FORMAT", "json")
	t.Setenv("KEYPROXY_EMAIL", "env@example.com")
	t.Setenv("KEYPROXY_AWS_REGION", "eu-north-1")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Server.Timeout)
	assert.Equal(t, config.StoreMemory, cfg.Session.Store)
	assert.Equal(t, "env@example.com", cfg.Account.Email)
	assert.Equal(t, "eu-north-1", cfg.AWS.Region)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ExpandsHomeInSessionPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KEYPROXY_SESSION_PATH", "~/kp/session.yaml")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "kp", "session.yaml"), cfg.Session.Path)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"KEYPROXY_LOG_LEVEL":     "verbose",
		"KEYPROXY_LOG_FORMAT":    "xml",
		"KEYPROXY_SESSION_STORE": "redis",
		"KEYPROXY_BASE_URL":      "ftp://nowhere",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := config.Load("")
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{BaseURL: "http://localhost:5000"},
		Session: config.SessionConfig{Store: config.StorePostgres},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
	assert.ErrorContains(t, cfg.Validate(), "session.dsn")

	cfg.Session.DSN = "postgres://localhost/keyproxy"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))
	_, err := config.Load(path)
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestLoad_OverridesApplyBeforeValidation(t *testing.T) {
	t.Setenv("KEYPROXY_LOG_LEVEL", "loud")
	t.Setenv("KEYPROXY_BASE_URL", "not a url")

	cfg, err := config.Load("", func(c *config.Config) {
		c.Logging.Level = "debug"
		c.Server.BaseURL = "http://localhost:5000"
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://localhost:5000", cfg.Server.BaseURL)

	_, err = config.Load("", func(c *config.Config) { c.Logging.Level = "verbose" })
	assert.ErrorContains(t, err, "invalid log level: verbose")
}
