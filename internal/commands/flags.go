package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pulse/internal/core/config"
	"github.com/hay-kot/pulse/internal/core/hub"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	// Config is loaded in the Before hook and available to all commands.
	// It may hold invalid values; see ConfigErr.
	Config *config.Config

	// ConfigErr is the validation error for Config, if any. Commands other
	// than config validate refuse to run while it is set.
	ConfigErr error

	// Hub is the process-wide broadcaster, built in the Before hook
	Hub *hub.Hub
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "pulse", "config.yaml")
}

// requireValidConfig is a Before hook for commands that need a valid
// configuration.
func (f *Flags) requireValidConfig(ctx context.Context, _ *cli.Command) (context.Context, error) {
	if f.ConfigErr != nil {
		return ctx, fmt.Errorf("invalid config (run 'pulse config validate' for details): %w", f.ConfigErr)
	}
	return ctx, nil
}
