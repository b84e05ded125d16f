// Package config loads and watches planstream configuration. Settings come
// from a YAML file with environment overrides for credentials; the watcher
// re-applies logging settings on file changes without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"planstream/internal/logging"
)

// Config holds all planstream configuration.
type Config struct {
	Name string `yaml:"name"`

	// Streaming backend
	Backend BackendConfig `yaml:"backend"`

	// Generation behavior
	Generation GenerationConfig `yaml:"generation"`

	// Observation poller
	Observe ObserveConfig `yaml:"observe"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the streaming model backend.
type BackendConfig struct {
	Provider string `yaml:"provider"` // openrouter, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// GenerationConfig configures orchestrator behavior.
type GenerationConfig struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Concurrency int     `yaml:"concurrency"` // fan-out limit, 0 = unbounded
	Temperature float64 `yaml:"temperature"`
}

// ObserveConfig configures the observation poller.
type ObserveConfig struct {
	Interval string `yaml:"interval"`
}

// LoggingConfig configures category file logging. Enabled is the master
// switch; with it off nothing is written regardless of level.
type LoggingConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Level      string   `yaml:"level"`
	Categories []string `yaml:"categories,omitempty"` // empty = all
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "planstream",
		Backend: BackendConfig{
			Provider: "openrouter",
			Model:    "anthropic/claude-3.5-sonnet",
			BaseURL:  "https://openrouter.ai/api/v1",
			Timeout:  "10m",
		},
		Generation: GenerationConfig{
			MaxTokens:   0, // no ceiling
			Concurrency: 4,
			Temperature: 0.1,
		},
		Observe: ObserveConfig{
			Interval: "500ms",
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets environment credentials take precedence over the
// file. Checked in priority order; the last match wins.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Backend.APIKey = key
		if c.Backend.Provider == "" {
			c.Backend.Provider = "openrouter"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Backend.APIKey = key
		c.Backend.Provider = "gemini"
	}
	if model := os.Getenv("PLANSTREAM_MODEL"); model != "" {
		c.Backend.Model = model
	}
}

// Validate checks structural soundness of the loaded settings.
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case "", "openrouter", "gemini":
	default:
		return fmt.Errorf("unknown backend provider %q", c.Backend.Provider)
	}
	if c.Backend.Timeout != "" {
		if _, err := time.ParseDuration(c.Backend.Timeout); err != nil {
			return fmt.Errorf("invalid backend timeout %q: %w", c.Backend.Timeout, err)
		}
	}
	if c.Observe.Interval != "" {
		if _, err := time.ParseDuration(c.Observe.Interval); err != nil {
			return fmt.Errorf("invalid observe interval %q: %w", c.Observe.Interval, err)
		}
	}
	if c.Generation.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if c.Generation.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}

// BackendTimeout returns the parsed backend timeout, or the fallback when
// unset or unparsable.
func (c *Config) BackendTimeout(fallback time.Duration) time.Duration {
	if c.Backend.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return fallback
	}
	return d
}

// ObserveInterval returns the parsed poll interval, or the fallback.
func (c *Config) ObserveInterval(fallback time.Duration) time.Duration {
	if c.Observe.Interval == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Observe.Interval)
	if err != nil {
		return fallback
	}
	return d
}

// LoggingSettings converts the logging section to the logging package's
// runtime settings.
func (c *Config) LoggingSettings() logging.Settings {
	if !c.Logging.Enabled {
		return logging.Settings{}
	}
	s := logging.Settings{
		DebugMode: true,
		Level:     c.Logging.Level,
	}
	if len(c.Logging.Categories) > 0 {
		s.Categories = make(map[string]bool, len(c.Logging.Categories))
		for _, cat := range c.Logging.Categories {
			s.Categories[cat] = true
		}
	}
	return s
}

// ApplyLogging pushes the logging section into the logging package.
func (c *Config) ApplyLogging() {
	logging.Configure(c.LoggingSettings())
	logging.Config("logging settings applied: enabled=%v level=%s", c.Logging.Enabled, c.Logging.Level)
}
