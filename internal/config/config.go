package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the system-wide settings coordinator. Precedence is
// file > environment > defaults.
type Config struct {
	HTTP      *HTTPConfig      `json:"http" yaml:"http"`
	Database  *DatabaseConfig  `json:"database" yaml:"database"`
	Store     *StoreConfig     `json:"store" yaml:"store"`
	Relay     *RelayConfig     `json:"relay" yaml:"relay"`
	WebSocket *WebSocketConfig `json:"websocket" yaml:"websocket"`
}

type HTTPConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path    string        `json:"path" yaml:"path"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// StoreConfig selects the durable session store backend.
type StoreConfig struct {
	Backend  string `json:"backend" yaml:"backend"` // "sqlite" or "redis"
	RedisURL string `json:"redis_url" yaml:"redis_url"`
}

// RelayConfig carries the fanout core's policy knobs.
type RelayConfig struct {
	ClassCapacity    int           `json:"class_capacity" yaml:"class_capacity"`
	DebounceInterval time.Duration `json:"debounce_interval" yaml:"debounce_interval"`
	SessionRetention time.Duration `json:"session_retention" yaml:"session_retention"`
	StoreTimeout     time.Duration `json:"store_timeout" yaml:"store_timeout"`
	UpdateRate       float64       `json:"update_rate" yaml:"update_rate"`
	UpdateBurst      int           `json:"update_burst" yaml:"update_burst"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	SendBuffer   int           `json:"send_buffer" yaml:"send_buffer"`
}

// DefaultConfig returns production-ready defaults: 60-student classes,
// 3-second debounce, 24-hour session retention.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: &DatabaseConfig{
			Path:    "./classcast.db",
			Timeout: 30 * time.Second,
		},
		Store: &StoreConfig{
			Backend:  "sqlite",
			RedisURL: "redis://localhost:6379/0",
		},
		Relay: &RelayConfig{
			ClassCapacity:    60,
			DebounceInterval: 3 * time.Second,
			SessionRetention: 24 * time.Hour,
			StoreTimeout:     5 * time.Second,
			UpdateRate:       20,
			UpdateBurst:      40,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			SendBuffer:   100,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if c.Store.Backend != "sqlite" && c.Store.Backend != "redis" {
		return fmt.Errorf("store backend must be 'sqlite' or 'redis'")
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("redis URL is required for the redis store backend")
	}

	if c.Relay == nil {
		return fmt.Errorf("relay configuration is required")
	}
	if c.Relay.ClassCapacity <= 0 {
		return fmt.Errorf("class capacity must be positive")
	}
	if c.Relay.DebounceInterval <= 0 {
		return fmt.Errorf("debounce interval must be positive")
	}
	if c.Relay.SessionRetention <= 0 {
		return fmt.Errorf("session retention must be positive")
	}
	if c.Relay.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.Relay.UpdateRate <= 0 || c.Relay.UpdateBurst <= 0 {
		return fmt.Errorf("update rate and burst must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket intervals must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}

	return nil
}

// LoadFromEnv overlays CLASSCAST_* environment variables onto the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("CLASSCAST_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("CLASSCAST_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if dbPath := os.Getenv("CLASSCAST_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if backend := os.Getenv("CLASSCAST_STORE_BACKEND"); backend != "" {
		config.Store.Backend = backend
	}
	if redisURL := os.Getenv("CLASSCAST_REDIS_URL"); redisURL != "" {
		config.Store.RedisURL = redisURL
	}
	if capacity := os.Getenv("CLASSCAST_CLASS_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			config.Relay.ClassCapacity = n
		}
	}
	if debounce := os.Getenv("CLASSCAST_DEBOUNCE_INTERVAL"); debounce != "" {
		if d, err := time.ParseDuration(debounce); err == nil {
			config.Relay.DebounceInterval = d
		}
	}
	if retention := os.Getenv("CLASSCAST_SESSION_RETENTION"); retention != "" {
		if d, err := time.ParseDuration(retention); err == nil {
			config.Relay.SessionRetention = d
		}
	}
	if pingInterval := os.Getenv("CLASSCAST_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if readTimeout := os.Getenv("CLASSCAST_WEBSOCKET_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}

	return config
}

// configFile mirrors Config with string durations so both JSON and YAML
// files can spell durations as "3s" / "24h".
type configFile struct {
	HTTP *struct {
		Host         string `json:"host" yaml:"host"`
		Port         int    `json:"port" yaml:"port"`
		ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
	} `json:"http" yaml:"http"`
	Database *struct {
		Path    string `json:"path" yaml:"path"`
		Timeout string `json:"timeout" yaml:"timeout"`
	} `json:"database" yaml:"database"`
	Store *struct {
		Backend  string `json:"backend" yaml:"backend"`
		RedisURL string `json:"redis_url" yaml:"redis_url"`
	} `json:"store" yaml:"store"`
	Relay *struct {
		ClassCapacity    int     `json:"class_capacity" yaml:"class_capacity"`
		DebounceInterval string  `json:"debounce_interval" yaml:"debounce_interval"`
		SessionRetention string  `json:"session_retention" yaml:"session_retention"`
		StoreTimeout     string  `json:"store_timeout" yaml:"store_timeout"`
		UpdateRate       float64 `json:"update_rate" yaml:"update_rate"`
		UpdateBurst      int     `json:"update_burst" yaml:"update_burst"`
	} `json:"relay" yaml:"relay"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval" yaml:"ping_interval"`
		ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
		SendBuffer   int    `json:"send_buffer" yaml:"send_buffer"`
	} `json:"websocket" yaml:"websocket"`
}

// LoadFromFile reads a JSON or YAML config file, selected by extension.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config := DefaultConfig()
	applyFile(config, &file)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// applyFile overlays non-zero file values onto the config.
func applyFile(config *Config, file *configFile) {
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		applyDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		applyDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		applyDuration(&config.Database.Timeout, file.Database.Timeout)
	}
	if file.Store != nil {
		if file.Store.Backend != "" {
			config.Store.Backend = file.Store.Backend
		}
		if file.Store.RedisURL != "" {
			config.Store.RedisURL = file.Store.RedisURL
		}
	}
	if file.Relay != nil {
		if file.Relay.ClassCapacity > 0 {
			config.Relay.ClassCapacity = file.Relay.ClassCapacity
		}
		applyDuration(&config.Relay.DebounceInterval, file.Relay.DebounceInterval)
		applyDuration(&config.Relay.SessionRetention, file.Relay.SessionRetention)
		applyDuration(&config.Relay.StoreTimeout, file.Relay.StoreTimeout)
		if file.Relay.UpdateRate > 0 {
			config.Relay.UpdateRate = file.Relay.UpdateRate
		}
		if file.Relay.UpdateBurst > 0 {
			config.Relay.UpdateBurst = file.Relay.UpdateBurst
		}
	}
	if file.WebSocket != nil {
		applyDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval)
		applyDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		applyDuration(&config.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
		if file.WebSocket.SendBuffer > 0 {
			config.WebSocket.SendBuffer = file.WebSocket.SendBuffer
		}
	}
}

func applyDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// LoadConfigWithPrecedence loads configuration with file > env > defaults.
// File errors fall back to the environment overlay so a missing optional
// file never prevents startup.
func LoadConfigWithPrecedence(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}

	return config
}
