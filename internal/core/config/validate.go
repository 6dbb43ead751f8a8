package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("notify.default_expiry", c.Notify.DefaultExpiry, positiveDuration),
		criterio.Run("notify.quick_expiry", c.Notify.QuickExpiry, positiveDuration),
		criterio.Run("notify.max_items", c.Notify.MaxItems, nonNegative),
		c.validateQuickExpiry(),
		c.validatePatterns(),
	)
}

// ValidateDeep runs Validate and then checks that the config file itself is
// accessible. An empty configPath skips the file check.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return validateConfigFile(configPath)
}

func (c *Config) validateQuickExpiry() error {
	if c.Notify.QuickExpiry > c.Notify.DefaultExpiry {
		return criterio.NewFieldErrors("notify.quick_expiry",
			fmt.Errorf("%s exceeds default_expiry %s", c.Notify.QuickExpiry, c.Notify.DefaultExpiry))
	}
	return nil
}

func (c *Config) validatePatterns() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Scenarios.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("scenarios.patterns[%d]", i), fmt.Errorf("invalid glob %q", pattern))
		}
	}
	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func positiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be greater than zero, got %s", d)
	}
	return nil
}

func nonNegative(n int) error {
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}
