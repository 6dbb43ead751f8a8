// Package logging holds the zerolog conventions shared by pulse components.
package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component creates a new logger with a component identifier derived from
// the global logger. Uses the "cmp" key for consistency with zerolog
// conventions.
func Component(name string) zerolog.Logger {
	return For(log.Logger, name)
}

// For derives a component logger from base and installs ContextHook so
// events logged with .Ctx(ctx) pick up the operation label.
func For(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("cmp", name).Logger().Hook(ContextHook{})
}
