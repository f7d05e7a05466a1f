package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 60, cfg.Relay.ClassCapacity)
	assert.Equal(t, 3*time.Second, cfg.Relay.DebounceInterval)
	assert.Equal(t, 24*time.Hour, cfg.Relay.SessionRetention)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }},
		{"redis without URL", func(c *Config) { c.Store.Backend = "redis"; c.Store.RedisURL = "" }},
		{"zero capacity", func(c *Config) { c.Relay.ClassCapacity = 0 }},
		{"negative debounce", func(c *Config) { c.Relay.DebounceInterval = -time.Second }},
		{"zero retention", func(c *Config) { c.Relay.SessionRetention = 0 }},
		{"zero update rate", func(c *Config) { c.Relay.UpdateRate = 0 }},
		{"zero send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }},
		{"missing relay section", func(c *Config) { c.Relay = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLASSCAST_HTTP_PORT", "9090")
	t.Setenv("CLASSCAST_STORE_BACKEND", "redis")
	t.Setenv("CLASSCAST_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("CLASSCAST_CLASS_CAPACITY", "30")
	t.Setenv("CLASSCAST_DEBOUNCE_INTERVAL", "5s")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Store.RedisURL)
	assert.Equal(t, 30, cfg.Relay.ClassCapacity)
	assert.Equal(t, 5*time.Second, cfg.Relay.DebounceInterval)
	// Untouched values keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CLASSCAST_HTTP_PORT", "not-a-number")
	t.Setenv("CLASSCAST_DEBOUNCE_INTERVAL", "soon")

	cfg := LoadFromEnv()
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Relay.DebounceInterval)
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 9000},
		"relay": {"class_capacity": 25, "debounce_interval": "2s"},
		"store": {"backend": "redis", "redis_url": "redis://cache:6379/0"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 25, cfg.Relay.ClassCapacity)
	assert.Equal(t, 2*time.Second, cfg.Relay.DebounceInterval)
	assert.Equal(t, "redis", cfg.Store.Backend)
	// Unspecified values fall back to defaults.
	assert.Equal(t, 24*time.Hour, cfg.Relay.SessionRetention)
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  port: 9001
relay:
  class_capacity: 40
  session_retention: 48h
websocket:
  ping_interval: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.HTTP.Port)
	assert.Equal(t, 40, cfg.Relay.ClassCapacity)
	assert.Equal(t, 48*time.Hour, cfg.Relay.SessionRetention)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PingInterval)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"store": {"backend": "dynamo"}}`), 0o644))
	_, err = LoadFromFile(invalid)
	assert.Error(t, err)
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CLASSCAST_HTTP_PORT", "9090")

	// File wins over environment.
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http": {"port": 9000}}`), 0o644))
	cfg := LoadConfigWithPrecedence(path)
	assert.Equal(t, 9000, cfg.HTTP.Port)

	// No file: environment wins over defaults.
	cfg = LoadConfigWithPrecedence("")
	assert.Equal(t, 9090, cfg.HTTP.Port)

	// Unreadable file falls back to the environment overlay.
	cfg = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 9090, cfg.HTTP.Port)
}
