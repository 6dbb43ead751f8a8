package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pulse/internal/core/config"
	"github.com/hay-kot/pulse/internal/core/hub"
	"github.com/hay-kot/pulse/internal/printer"
	"github.com/hay-kot/pulse/pkg/clock"
)

func newTestApp(t *testing.T) (*cli.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	return newTestAppWith(t, &cfg)
}

func newTestAppWith(t *testing.T, cfg *config.Config) (*cli.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	flags := &Flags{Config: cfg, ConfigErr: cfg.Validate()}

	var out, errOut bytes.Buffer
	app := &cli.Command{
		Name:           "pulse",
		Writer:         &out,
		ErrWriter:      &errOut,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return printer.NewContext(ctx, printer.New(&out)), nil
		},
	}
	app = NewReplayCmd(flags).Register(app)
	app = NewConfigValidateCmd(flags).Register(app)
	return app, &out, &errOut
}

func TestDemoCmd_SettlesAndDrains(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.DefaultExpiry = 60 * time.Millisecond
	cfg.Notify.QuickExpiry = 30 * time.Millisecond

	h := hub.New(cfg.Notify, clock.Real(), zerolog.Nop())
	t.Cleanup(h.Close)
	flags := &Flags{Config: &cfg, Hub: h}

	var out bytes.Buffer
	app := &cli.Command{
		Name:   "pulse",
		Writer: &out,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return printer.NewContext(ctx, printer.New(&out)), nil
		},
	}
	app = NewDemoCmd(flags).Register(app)

	err := app.Run(context.Background(), []string{
		"pulse", "demo", "--ops", "3", "--fail-rate", "1", "--max-latency", "10ms", "--rate", "200",
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "busy=true")
	assert.Contains(t, out.String(), "[error] op-")
	assert.Contains(t, out.String(), "all operations settled and notifications expired")
	assert.Zero(t, h.Activity.ActiveCount())
	assert.Zero(t, h.Messages.Len())
}

func TestDemoCmd_RejectsBadFlags(t *testing.T) {
	cfg := config.DefaultConfig()

	for _, args := range [][]string{
		{"--ops", "0"},
		{"--fail-rate", "2"},
		{"--max-latency", "0s"},
		{"--rate", "-1"},
	} {
		h := hub.New(cfg.Notify, clock.Real(), zerolog.Nop())
		flags := &Flags{Config: &cfg, Hub: h}
		app := NewDemoCmd(flags).Register(&cli.Command{Name: "pulse", Writer: &bytes.Buffer{}})

		err := app.Run(context.Background(), append([]string{"pulse", "demo"}, args...))
		assert.Error(t, err, "args %v", args)
		h.Close()
	}
}

func TestReplayCmd_PassingScenarios(t *testing.T) {
	app, out, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"pulse", "replay", "../scenario/testdata/save_failed.yaml"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "save failed is sticky until dismissed")
	assert.Contains(t, out.String(), "1 scenario(s) passed")
}

func TestReplayCmd_JSONReport(t *testing.T) {
	app, out, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{
		"pulse", "replay", "--format", "json", "../scenario/testdata/nested/*.yaml",
	})
	require.NoError(t, err)

	var report replayReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Passed)
	assert.Len(t, report.Results, 2)
	assert.Empty(t, report.Errors)
}

func TestReplayCmd_FailingScenarioExitsNonzero(t *testing.T) {
	app, out, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"pulse", "replay", "../scenario/testdata/failing.yml"})
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out.String(), "count = 1, want 2")
	assert.Contains(t, out.String(), "1 scenario(s) failed")
}

func TestReplayCmd_NoMatches(t *testing.T) {
	app, _, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"pulse", "replay", "testdata/none/*.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files match")
}

func TestReplayCmd_RejectsUnknownFormat(t *testing.T) {
	app, _, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"pulse", "replay", "--format", "xml", "x.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestConfigValidateCmd_Valid(t *testing.T) {
	app, out, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"pulse", "config", "validate"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Configuration is valid")
}

func TestConfigValidateCmd_ListsFieldErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.MaxItems = -1
	cfg.Notify.QuickExpiry = 0

	app, out, _ := newTestAppWith(t, &cfg)

	err := app.Run(context.Background(), []string{"pulse", "config", "validate", "--format", "json"})
	require.Error(t, err)

	var result struct {
		Valid  bool              `json:"valid"`
		Errors []validationError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.False(t, result.Valid)

	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "notify.max_items")
	assert.Contains(t, fields, "notify.quick_expiry")
}

func TestReplayCmd_RefusesInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.MaxItems = -1

	app, out, _ := newTestAppWith(t, &cfg)

	err := app.Run(context.Background(), []string{"pulse", "replay", "../scenario/testdata/save_failed.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Empty(t, out.String())
}

func TestReplayCmd_MisspelledExpectationFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: typo\nsteps:\n  - begin: 2\n  - expect: {cuont: 0, bussy: false}\n"), 0o644))

	app, out, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"pulse", "replay", path})
	require.Error(t, err)
	assert.Contains(t, out.String(), "field cuont not found")
}

func TestCollectErrors(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, collectErrors(nil))
	})

	t.Run("field errors", func(t *testing.T) {
		err := criterio.NewFieldErrors("notify.max_items", errors.New("must not be negative, got -1"))

		got := collectErrors(err)
		require.Len(t, got, 1)
		assert.Equal(t, "notify.max_items", got[0].Field)
		assert.Equal(t, "must not be negative, got -1", got[0].Message)
	})

	t.Run("plain error", func(t *testing.T) {
		got := collectErrors(errors.New("boom"))
		require.Len(t, got, 1)
		assert.Empty(t, got[0].Field)
		assert.Equal(t, "boom", got[0].Message)
	})
}
