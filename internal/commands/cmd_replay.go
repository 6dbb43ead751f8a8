package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pulse/internal/core/logging"
	"github.com/hay-kot/pulse/internal/printer"
	"github.com/hay-kot/pulse/internal/scenario"
	"github.com/hay-kot/pulse/pkg/iojson"
	"github.com/hay-kot/pulse/pkg/utils"
)

type ReplayCmd struct {
	flags *Flags

	format   string
	trace    bool
	failFast bool
	watch    bool
}

// NewReplayCmd creates a new replay command.
func NewReplayCmd(flags *Flags) *ReplayCmd {
	return &ReplayCmd{flags: flags}
}

// Register adds the replay command to the application.
func (cmd *ReplayCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "replay",
		Usage:     "Replay scenario files against a fresh broadcaster",
		UsageText: "pulse replay [options] [pattern...]",
		Description: `Replays YAML scenario files step by step on a simulated clock and checks
their expect steps.

Patterns are doublestar globs (scenarios/**/*.yaml). Use "-" to read a
scenario from stdin. With no patterns, scenarios.patterns from the config
file is used. Log output from a failing scenario is written to stderr.`,
		Before: cmd.flags.requireValidConfig,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "trace",
				Usage:       "print the state after every step (text format)",
				Destination: &cmd.trace,
			},
			&cli.BoolFlag{
				Name:        "fail-fast",
				Usage:       "stop after the first failing scenario",
				Destination: &cmd.failFast,
			},
			&cli.BoolFlag{
				Name:        "watch",
				Aliases:     []string{"w"},
				Usage:       "replay again whenever a matching file changes",
				Destination: &cmd.watch,
			},
		},
		ShellComplete: ScenarioCompleter(cmd.flags),
		Action:        cmd.run,
	})

	return app
}

type replayReport struct {
	Results []scenario.Result `json:"results"`
	Errors  []replayError     `json:"errors,omitempty"`
	Passed  bool              `json:"passed"`
}

type replayError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (cmd *ReplayCmd) run(ctx context.Context, c *cli.Command) error {
	switch cmd.format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown format %q (want text or json)", cmd.format)
	}

	patterns := c.Args().Slice()
	if len(patterns) == 0 {
		patterns = cmd.flags.Config.Scenarios.Patterns
	}

	files, err := scenario.Discover(patterns...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no scenario files match %v", patterns)
	}

	report := cmd.replayAll(ctx, c.Root().ErrWriter, files)
	if err := cmd.output(ctx, c, report); err != nil {
		return err
	}

	if cmd.watch {
		return cmd.watchAndReplay(ctx, c, patterns)
	}

	if !report.Passed {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *ReplayCmd) replayAll(ctx context.Context, errw io.Writer, files []string) replayReport {
	report := replayReport{Passed: true}
	for _, file := range files {
		res, err := cmd.replayFile(ctx, errw, file)
		if err != nil {
			report.Passed = false
			report.Errors = append(report.Errors, replayError{Path: file, Message: err.Error()})
			log.Error().Err(err).Str("path", file).Msg("replay aborted")
		} else {
			report.Results = append(report.Results, res)
			if !res.Passed() {
				report.Passed = false
			}
		}

		if cmd.failFast && !report.Passed {
			break
		}
	}
	return report
}

func (cmd *ReplayCmd) output(ctx context.Context, c *cli.Command, report replayReport) error {
	if cmd.format == "json" {
		return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, report)
	}
	cmd.outputText(printer.Ctx(ctx), report)
	return nil
}

// watchAndReplay replays every matching file again after each change until
// ctx is cancelled. Failures are reported but never end the loop.
func (cmd *ReplayCmd) watchAndReplay(ctx context.Context, c *cli.Command, patterns []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	p := printer.Ctx(ctx)
	p.Infof("watching %s (ctrl+c to stop)", strings.Join(patterns, ", "))

	w := scenario.Watcher{
		Patterns: patterns,
		Logger:   logging.Component("watch"),
	}
	return w.Watch(ctx, func(files []string) {
		if len(files) == 0 {
			p.Warnf("no scenario files match %v", patterns)
			return
		}
		p.Section(fmt.Sprintf("replaying %d file(s)", len(files)))
		if err := cmd.output(ctx, c, cmd.replayAll(ctx, c.Root().ErrWriter, files)); err != nil {
			log.Error().Err(err).Msg("failed to write replay report")
		}
	})
}

// replayFile runs one scenario with its log output held back. The logs are
// written to errw only when the scenario fails or aborts.
func (cmd *ReplayCmd) replayFile(ctx context.Context, errw io.Writer, file string) (scenario.Result, error) {
	sc, err := scenario.Load(file)
	if err != nil {
		return scenario.Result{}, err
	}

	logs := &utils.DeferredWriter{}
	runner := scenario.Runner{
		Notify: cmd.flags.Config.Notify,
		Logger: logging.For(log.Logger.Output(logs), "replay"),
	}

	start := time.Now()
	res, err := runner.Run(ctx, sc)
	passed := err == nil && res.Passed()
	log.Debug().
		Str("scenario", sc.Name).
		Dur("took", time.Since(start)).
		Bool("passed", passed).
		Msg("scenario replayed")

	if passed {
		logs.Discard()
	} else if ferr := logs.Flush(errw); ferr != nil {
		log.Warn().Err(ferr).Str("scenario", sc.Name).Msg("failed to write scenario logs")
	}
	return res, err
}

func (cmd *ReplayCmd) outputText(p *printer.Printer, report replayReport) {
	failed := 0
	for _, res := range report.Results {
		if res.Passed() {
			p.Successf("%s (%d steps)", res.Name, len(res.Trace))
		} else {
			failed++
			p.Errorf("%s", res.Name)
			for _, f := range res.Failures {
				p.Printf("  step %d (line %d): %s", f.Step, f.Line, f.Message)
			}
		}

		if cmd.trace {
			for _, s := range res.Trace {
				p.Printf("    %3d %-8s t=%-8s count=%d busy=%-5t items=%d %s",
					s.Step, s.Kind, s.Elapsed, s.Count, s.Busy, s.Items, s.Latest)
			}
		}
	}

	for _, e := range report.Errors {
		failed++
		p.Errorf("%s: %s", e.Path, e.Message)
	}

	p.Printf("")
	if report.Passed {
		p.Successf("%d scenario(s) passed", len(report.Results))
		return
	}
	p.Errorf("%d scenario(s) failed", failed)
}
