// Package activity counts in-flight operations and derives a single busy
// signal from the count.
package activity

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pulse/internal/core/logging"
	"github.com/hay-kot/pulse/pkg/observe"
)

// Tracking selects whether a wrapped call contributes to the count.
type Tracking int

const (
	// Track counts the call while it is in flight.
	Track Tracking = iota
	// Skip runs the call without touching the count.
	Skip
)

func (t Tracking) String() string {
	if t == Skip {
		return "skip"
	}
	return "track"
}

// State is the snapshot published after every Begin and End.
type State struct {
	Count int  `json:"count"`
	Busy  bool `json:"busy"`
}

// Counter is a non-negative count of outstanding operations. It is safe for
// concurrent use.
type Counter struct {
	mu     sync.Mutex
	count  int
	state  *observe.Value[State]
	logger zerolog.Logger
}

// NewCounter creates an idle counter.
func NewCounter(logger zerolog.Logger) *Counter {
	return &Counter{
		state:  observe.New(State{}),
		logger: logger,
	}
}

// Begin records the start of an operation.
func (c *Counter) Begin() {
	c.mu.Lock()
	c.count++
	if c.count == 1 {
		c.logger.Debug().Msg("busy")
	}
	c.state.Stage(State{Count: c.count, Busy: true})
	c.mu.Unlock()

	c.state.Flush()
}

// End records the completion of an operation. Calls without a matching
// Begin are clamped at zero.
func (c *Counter) End() {
	c.mu.Lock()
	switch {
	case c.count == 0:
		c.logger.Debug().Msg("end without matching begin")
	case c.count == 1:
		c.count = 0
		c.logger.Debug().Msg("idle")
	default:
		c.count--
	}
	c.state.Stage(State{Count: c.count, Busy: c.count > 0})
	c.mu.Unlock()

	c.state.Flush()
}

// ActiveCount returns the number of outstanding operations.
func (c *Counter) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// IsBusy reports whether any operation is outstanding.
func (c *Counter) IsBusy() bool {
	return c.ActiveCount() > 0
}

// State returns the read-only observable snapshot.
func (c *Counter) State() observe.Reader[State] {
	return c.state
}

// OnSubscriberPanic registers a hook for panics raised by State subscribers.
func (c *Counter) OnSubscriberPanic(fn func(recovered any)) {
	c.state.OnPanic(fn)
}

// Do runs op, counting it as in flight unless tracking is Skip. End is
// deferred, so it fires exactly once whether op returns nil, returns an
// error, returns because ctx was cancelled, or panics. The error from op is
// returned unchanged.
func (c *Counter) Do(ctx context.Context, tracking Tracking, op func(ctx context.Context) error) error {
	_, err := Wrap(ctx, c, tracking, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Go starts op on a new goroutine. Begin happens before Go returns, so the
// count reflects the call immediately. End runs before op's error is sent on
// the returned channel, which is then closed.
func (c *Counter) Go(ctx context.Context, tracking Tracking, op func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)

	if tracking == Skip {
		go func() {
			defer close(done)
			done <- op(ctx)
		}()
		return done
	}

	c.Begin()
	go func() {
		defer close(done)
		err := func() error {
			defer c.End()
			return op(logging.WithTracked(ctx))
		}()
		done <- err
	}()
	return done
}

// Wrap is the value-returning form of Counter.Do.
func Wrap[T any](ctx context.Context, c *Counter, tracking Tracking, op func(ctx context.Context) (T, error)) (T, error) {
	if tracking == Skip {
		return op(ctx)
	}

	c.Begin()
	defer c.End()

	c.logger.Debug().Ctx(ctx).Msg("operation started")
	return op(logging.WithTracked(ctx))
}

// WithLabel names the operation carried by ctx in log output.
func WithLabel(ctx context.Context, label string) context.Context {
	return logging.WithOperation(ctx, label)
}

// Tracked reports whether ctx belongs to a call counted by a Counter.
func Tracked(ctx context.Context) bool {
	return logging.IsTracked(ctx)
}
