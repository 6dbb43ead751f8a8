// Package config handles configuration loading and validation for pulse.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/pulse/internal/core/notify"
)

// Config holds the application configuration.
type Config struct {
	Notify    NotifyConfig    `yaml:"notify"`
	Scenarios ScenariosConfig `yaml:"scenarios"`
}

// NotifyConfig tunes the message queue.
type NotifyConfig struct {
	// DefaultExpiry applies to non-sticky notifications pushed without an
	// explicit expiry.
	DefaultExpiry time.Duration `yaml:"default_expiry"`
	// QuickExpiry applies to the quick helpers.
	QuickExpiry time.Duration `yaml:"quick_expiry"`
	// MaxItems caps the queue, evicting the oldest first. 0 = unlimited.
	MaxItems int `yaml:"max_items"`
}

// ScenariosConfig holds defaults for `pulse replay`.
type ScenariosConfig struct {
	// Patterns are doublestar globs used when replay is run without
	// arguments.
	Patterns []string `yaml:"patterns"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Notify: NotifyConfig{
			DefaultExpiry: notify.DefaultExpiry,
			QuickExpiry:   notify.DefaultQuickExpiry,
		},
		Scenarios: ScenariosConfig{
			Patterns: []string{"scenarios/**/*.yaml"},
		},
	}
}

// QueueOptions converts the notify section into queue options.
func (c NotifyConfig) QueueOptions() notify.Options {
	return notify.Options{
		DefaultExpiry: c.DefaultExpiry,
		QuickExpiry:   c.QuickExpiry,
		MaxItems:      c.MaxItems,
	}
}

// Load reads configuration from the given path and validates it. If
// configPath is empty or doesn't exist, returns defaults.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Read parses the config file and applies defaults without validating, so
// callers that report validation errors can still inspect the values.
func Read(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Notify.DefaultExpiry == 0 {
		c.Notify.DefaultExpiry = defaults.Notify.DefaultExpiry
	}
	if c.Notify.QuickExpiry == 0 {
		c.Notify.QuickExpiry = defaults.Notify.QuickExpiry
	}
	if len(c.Scenarios.Patterns) == 0 {
		c.Scenarios.Patterns = defaults.Scenarios.Patterns
	}
}
