package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Engine   EngineConfig            `yaml:"engine"`
	Session  SessionConfig           `yaml:"session"`
	Profiles map[string]Profile      `yaml:"profiles"`
	HTTP     HTTPConfig              `yaml:"http"`
	Logging  LoggingConfig           `yaml:"logging"`
}

// ServerConfig contains the protocol listener configuration
type ServerConfig struct {
	ListenURI      string `yaml:"listen_uri"`      // tcp://host:port or unix:///path
	ReadBufferSize int    `yaml:"read_buffer_size"`
	MaxConnections int    `yaml:"max_connections"`
}

// EngineConfig contains recognition engine client configuration
type EngineConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	PoolSize      int    `yaml:"pool_size"` // transcription worker pool
}

// SessionConfig contains the per-connection session defaults
type SessionConfig struct {
	Model      string                 `yaml:"model"`
	Language   string                 `yaml:"language"`
	MaxSeconds float64                `yaml:"max_seconds"` // 0 means unlimited
	Options    map[string]OptionValue `yaml:"options"`
}

// Profile is a named bundle of session settings. Explicit flags win over
// profile values when both are given.
type Profile struct {
	Model      string  `yaml:"model"`
	Language   string  `yaml:"language"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

// HTTPConfig contains the HTTP monitoring API configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Built-in profiles matching the shipped model variants.
var builtinProfiles = map[string]Profile{
	"fast-en":     {Model: "moonshine/tiny", Language: "en", MaxSeconds: 15.0},
	"accurate-en": {Model: "moonshine/base", Language: "en", MaxSeconds: 30.0},
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenURI:      "tcp://0.0.0.0:10300",
			ReadBufferSize: 65536,
			MaxConnections: 32,
		},
		Engine: EngineConfig{
			Endpoint:      "http://127.0.0.1:9000/transcribe",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 4,
			PoolSize:      4,
		},
		Session: SessionConfig{
			Model:    "moonshine/tiny",
			Language: "en",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, applying defaults for
// sections the file leaves out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	for name, profile := range c.Profiles {
		if err := profile.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}

	return nil
}

// ApplyProfile overwrites the session defaults with the named profile.
// File-defined profiles shadow built-in ones of the same name.
func (c *Config) ApplyProfile(name string) error {
	profile, ok := c.Profiles[name]
	if !ok {
		profile, ok = builtinProfiles[name]
	}
	if !ok {
		known := make([]string, 0, len(builtinProfiles)+len(c.Profiles))
		for n := range builtinProfiles {
			known = append(known, n)
		}
		for n := range c.Profiles {
			known = append(known, n)
		}
		return fmt.Errorf("unknown profile %q (known profiles: %s)", name, strings.Join(known, ", "))
	}

	if profile.Model != "" {
		c.Session.Model = profile.Model
	}
	if profile.Language != "" {
		c.Session.Language = profile.Language
	}
	if profile.MaxSeconds > 0 {
		c.Session.MaxSeconds = profile.MaxSeconds
	}

	return nil
}

// Validate validates the listener configuration
func (s *ServerConfig) Validate() error {
	if s.ListenURI == "" {
		return fmt.Errorf("listen_uri cannot be empty")
	}

	if !strings.HasPrefix(s.ListenURI, "tcp://") && !strings.HasPrefix(s.ListenURI, "unix://") {
		return fmt.Errorf("listen_uri must use tcp:// or unix:// scheme, got %q", s.ListenURI)
	}

	if s.ReadBufferSize < 1024 {
		return fmt.Errorf("read_buffer_size must be at least 1024 bytes, got %d", s.ReadBufferSize)
	}

	if s.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1, got %d", s.MaxConnections)
	}

	return nil
}

// Validate validates engine client configuration
func (e *EngineConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	if e.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", e.PoolSize)
	}

	return nil
}

// Validate validates session defaults
func (s *SessionConfig) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if s.MaxSeconds < 0 {
		return fmt.Errorf("max_seconds cannot be negative, got %f", s.MaxSeconds)
	}

	return nil
}

// Validate validates a profile definition
func (p *Profile) Validate() error {
	if p.Model == "" && p.Language == "" && p.MaxSeconds == 0 {
		return fmt.Errorf("profile must set at least one of model, language, max_seconds")
	}

	if p.MaxSeconds < 0 {
		return fmt.Errorf("max_seconds cannot be negative, got %f", p.MaxSeconds)
	}

	return nil
}

// Validate validates HTTP monitoring configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the engine request timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}
