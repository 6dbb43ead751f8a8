package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pulse/internal/scenario"
)

// ScenarioCompleter returns a ShellCompleteFunc that suggests scenario files
// matching the configured patterns as positional completions.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func ScenarioCompleter(flags *Flags) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		// Delegate to default flag completion when typing a flag
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		if flags.Config == nil {
			return
		}

		files, err := scenario.Discover(flags.Config.Scenarios.Patterns...)
		if err != nil {
			return
		}

		w := cmd.Root().Writer
		for _, f := range files {
			_, _ = fmt.Fprintln(w, f)
		}
	}
}
