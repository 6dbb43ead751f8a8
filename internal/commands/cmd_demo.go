package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/hay-kot/pulse/internal/core/activity"
	"github.com/hay-kot/pulse/internal/core/notify"
	"github.com/hay-kot/pulse/internal/printer"
)

var errSimulated = errors.New("simulated failure")

type DemoCmd struct {
	flags *Flags

	ops        int
	failRate   float64
	maxLatency time.Duration
	skipEvery  int
	rate       float64
}

// NewDemoCmd creates a new demo command.
func NewDemoCmd(flags *Flags) *DemoCmd {
	return &DemoCmd{flags: flags}
}

// Register adds the demo command to the application.
func (cmd *DemoCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "demo",
		Usage: "Run simulated operations and print every busy and message change",
		Description: `Starts a batch of overlapping simulated operations on the real clock.
Failures are reported as quick error notifications, successes as quick
success notifications. The command exits once every operation has settled
and every timed notification has expired.`,
		Before: cmd.flags.requireValidConfig,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "ops",
				Usage:       "number of operations to start",
				Value:       5,
				Destination: &cmd.ops,
			},
			&cli.FloatFlag{
				Name:        "fail-rate",
				Usage:       "probability (0-1) that an operation fails",
				Value:       0.3,
				Destination: &cmd.failRate,
			},
			&cli.DurationFlag{
				Name:        "max-latency",
				Usage:       "upper bound on simulated operation latency",
				Value:       1500 * time.Millisecond,
				Destination: &cmd.maxLatency,
			},
			&cli.IntFlag{
				Name:        "skip-every",
				Usage:       "run every nth operation untracked (0 disables)",
				Value:       0,
				Destination: &cmd.skipEvery,
			},
			&cli.FloatFlag{
				Name:        "rate",
				Usage:       "operations started per second (0 starts them all at once)",
				Value:       0,
				Destination: &cmd.rate,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *DemoCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.ops < 1 {
		return fmt.Errorf("--ops must be at least 1")
	}
	if cmd.failRate < 0 || cmd.failRate > 1 {
		return fmt.Errorf("--fail-rate must be between 0 and 1")
	}
	if cmd.maxLatency <= 0 {
		return fmt.Errorf("--max-latency must be positive")
	}
	if cmd.rate < 0 {
		return fmt.Errorf("--rate must not be negative")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cmd.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cmd.rate), 1)
	}

	p := printer.Ctx(ctx)
	h := cmd.flags.Hub

	drained := make(chan struct{})
	var drainOnce sync.Once
	settled := make(chan struct{})

	unsubActivity := h.Activity.State().Subscribe(func(s activity.State) {
		p.Infof("activity count=%d busy=%t", s.Count, s.Busy)
	})
	defer unsubActivity()

	unsubMessages := h.Messages.Observe().Subscribe(func(items []notify.Notification) {
		p.Printf("  messages: %d", len(items))
		for _, n := range items {
			p.Printf("    [%s] %s", n.Category, n.Text)
		}
		select {
		case <-settled:
			if len(items) == 0 {
				drainOnce.Do(func() { close(drained) })
			}
		default:
		}
	})
	defer unsubMessages()

	var (
		wg       sync.WaitGroup
		startErr error
	)
	for i := range cmd.ops {
		if err := limiter.Wait(ctx); err != nil {
			startErr = err
			break
		}

		tracking := activity.Track
		if cmd.skipEvery > 0 && (i+1)%cmd.skipEvery == 0 {
			tracking = activity.Skip
		}

		latency := time.Duration(rand.Int64N(int64(cmd.maxLatency))) + time.Millisecond
		fail := rand.Float64() < cmd.failRate
		opCtx := activity.WithLabel(ctx, fmt.Sprintf("op-%d", i))

		done := h.Activity.Go(opCtx, tracking, func(ctx context.Context) error {
			select {
			case <-time.After(latency):
			case <-ctx.Done():
				return ctx.Err()
			}
			if fail {
				return errSimulated
			}
			return nil
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := <-done; err != nil {
				h.Messages.Errorf("op-%d failed after %s: %v", i, latency.Round(time.Millisecond), err)
				return
			}
			h.Messages.QuickSuccess(fmt.Sprintf("op-%d done in %s", i, latency.Round(time.Millisecond)))
		}()
	}

	wg.Wait()
	close(settled)
	if startErr != nil {
		return startErr
	}
	log.Debug().Int("ops", cmd.ops).Msg("all demo operations settled")

	if h.Messages.Len() == 0 {
		drainOnce.Do(func() { close(drained) })
	}

	// every demo notification is timed, so the queue drains on its own
	timeout := h.Messages.Options().DefaultExpiry + time.Second
	select {
	case <-drained:
		p.Successf("all operations settled and notifications expired")
	case <-time.After(timeout):
		p.Warnf("%d notification(s) still queued after %s", h.Messages.Len(), timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
