package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pulse/internal/core/activity"
	"github.com/hay-kot/pulse/internal/core/config"
	"github.com/hay-kot/pulse/internal/core/hub"
	"github.com/hay-kot/pulse/internal/core/notify"
	"github.com/hay-kot/pulse/pkg/clock"
)

// Epoch is the fake clock's start time for every replay.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	// ErrExpectation marks a failed expect step.
	ErrExpectation = errors.New("expectation failed")
	// ErrOpFailed is returned by operations marked fail.
	ErrOpFailed = errors.New("operation failed")
)

// Snapshot is the hub state after a step.
type Snapshot struct {
	Step    int           `json:"step"`
	Kind    Kind          `json:"kind"`
	Elapsed time.Duration `json:"elapsed"`
	Count   int           `json:"count"`
	Busy    bool          `json:"busy"`
	Items   int           `json:"items"`
	Latest  string        `json:"latest,omitempty"`
}

// Failure is a failed expectation.
type Failure struct {
	Step    int    `json:"step"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Result is the outcome of a replay.
type Result struct {
	Name     string     `json:"name"`
	Path     string     `json:"path,omitempty"`
	Trace    []Snapshot `json:"trace"`
	Failures []Failure  `json:"failures,omitempty"`
}

// Passed reports whether every expectation held.
func (r Result) Passed() bool {
	return len(r.Failures) == 0
}

// Err returns nil when the replay passed, otherwise an error wrapping
// ErrExpectation that lists every failure.
func (r Result) Err() error {
	if r.Passed() {
		return nil
	}
	msgs := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		msgs[i] = fmt.Sprintf("step %d (line %d): %s", f.Step, f.Line, f.Message)
	}
	return fmt.Errorf("%s: %w: %s", r.Name, ErrExpectation, strings.Join(msgs, "; "))
}

// Runner replays scenarios.
type Runner struct {
	Notify config.NotifyConfig
	Logger zerolog.Logger
}

type pendingOp struct {
	release chan struct{}
	cancel  context.CancelFunc
	done    <-chan error
	step    *OpStep
}

type replay struct {
	ctx     context.Context
	hub     *hub.Hub
	clock   *clock.FakeClock
	logger  zerolog.Logger
	refs    map[string]string
	pending map[string]*pendingOp
	result  Result
}

// Run replays sc on a fresh Hub. The returned error reports a malformed
// scenario, such as an unknown ref; failed expectations are recorded in the
// Result instead.
func (r Runner) Run(ctx context.Context, sc *Scenario) (Result, error) {
	clk := clock.Fake(Epoch)
	h := hub.New(r.Notify, clk, r.Logger)
	defer h.Close()

	hub.RegisterDebugLogger(h, r.Logger)

	rp := &replay{
		ctx:     ctx,
		hub:     h,
		clock:   clk,
		logger:  r.Logger.With().Str("scenario", sc.Name).Logger(),
		refs:    make(map[string]string),
		pending: make(map[string]*pendingOp),
		result:  Result{Name: sc.Name, Path: sc.Path},
	}
	defer rp.abandon()

	for i := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return rp.result, err
		}

		step := &sc.Steps[i]
		if err := rp.apply(i, step); err != nil {
			return rp.result, fmt.Errorf("step %d (line %d): %w", i, step.Line, err)
		}
		rp.result.Trace = append(rp.result.Trace, rp.snapshot(i, step.Kind))
	}

	return rp.result, nil
}

func (rp *replay) apply(i int, step *Step) error {
	switch step.Kind {
	case KindBegin:
		for range step.Times {
			rp.hub.Activity.Begin()
		}
	case KindEnd:
		for range step.Times {
			rp.hub.Activity.End()
		}
	case KindOp:
		return rp.op(step.Op)
	case KindSettle:
		return rp.settle(step.Ref)
	case KindPush:
		return rp.push(step.Push)
	case KindDismiss:
		id, ok := rp.refs[step.Ref]
		if !ok {
			return fmt.Errorf("unknown push ref %q", step.Ref)
		}
		rp.hub.Messages.Dismiss(id)
	case KindClear:
		rp.hub.Messages.ClearAll()
	case KindAdvance:
		rp.clock.Advance(step.By)
	case KindExpect:
		for _, msg := range rp.check(step.Expect) {
			rp.result.Failures = append(rp.result.Failures, Failure{Step: i, Line: step.Line, Message: msg})
		}
	default:
		return fmt.Errorf("unknown step %q", step.Kind)
	}
	return nil
}

func (rp *replay) op(step *OpStep) error {
	tracking := activity.Track
	if step.Skip {
		tracking = activity.Skip
	}

	ctx := rp.ctx
	if step.Label != "" {
		ctx = activity.WithLabel(ctx, step.Label)
	}
	ctx, cancel := context.WithCancel(ctx)

	if step.Ref == "" {
		defer cancel()
		if step.Cancel {
			cancel()
		}
		err := rp.hub.Activity.Do(ctx, tracking, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if step.Fail {
				return ErrOpFailed
			}
			return nil
		})
		rp.report(step, err)
		return nil
	}

	if _, exists := rp.pending[step.Ref]; exists {
		cancel()
		return fmt.Errorf("op ref %q already in flight", step.Ref)
	}

	release := make(chan struct{})
	done := rp.hub.Activity.Go(ctx, tracking, func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		if step.Fail {
			return ErrOpFailed
		}
		return nil
	})

	rp.pending[step.Ref] = &pendingOp{release: release, cancel: cancel, done: done, step: step}
	return nil
}

func (rp *replay) settle(ref string) error {
	p, ok := rp.pending[ref]
	if !ok {
		return fmt.Errorf("no op in flight with ref %q", ref)
	}
	delete(rp.pending, ref)

	if p.step.Cancel {
		p.cancel()
	} else {
		close(p.release)
	}
	err := <-p.done
	p.cancel()

	rp.report(p.step, err)
	return nil
}

func (rp *replay) report(step *OpStep, err error) {
	if err == nil {
		rp.logger.Debug().Str("label", step.Label).Msg("op settled")
		return
	}
	rp.logger.Debug().Err(err).Str("label", step.Label).Msg("op settled with error")
	if step.Report != "" {
		rp.hub.Messages.ReportError(step.Report)
	}
}

// abandon cancels operations a scenario never settled so their goroutines
// exit.
func (rp *replay) abandon() {
	for ref, p := range rp.pending {
		rp.logger.Warn().Str("ref", ref).Msg("op never settled, cancelling")
		p.cancel()
		<-p.done
	}
	clear(rp.pending)
}

func (rp *replay) push(step *PushStep) error {
	category, err := notify.ParseCategory(step.Category)
	if err != nil {
		return err
	}
	if step.Ref != "" {
		if _, exists := rp.refs[step.Ref]; exists {
			return fmt.Errorf("duplicate push ref %q", step.Ref)
		}
	}

	var n notify.Notification
	switch {
	case step.Quick:
		n = rp.hub.Messages.Quick(category, step.Text)
	default:
		var opts []notify.PushOption
		if step.Sticky != nil {
			opts = append(opts, notify.Sticky(*step.Sticky))
		}
		if step.Expiry > 0 {
			opts = append(opts, notify.Expiry(step.Expiry))
		}
		n = rp.hub.Messages.Push(category, step.Text, opts...)
	}

	if step.Ref != "" {
		rp.refs[step.Ref] = n.ID
	}
	return nil
}

func (rp *replay) check(e *Expectation) []string {
	var msgs []string
	failf := func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}

	act := rp.hub.Activity
	msgq := rp.hub.Messages

	if e.Count != nil {
		if got := act.ActiveCount(); got != *e.Count {
			failf("count = %d, want %d", got, *e.Count)
		}
	}
	if e.Busy != nil {
		if got := act.IsBusy(); got != *e.Busy {
			failf("busy = %t, want %t", got, *e.Busy)
		}
	}
	if e.Items != nil {
		if got := msgq.Len(); got != *e.Items {
			failf("items = %d, want %d", got, *e.Items)
		}
	}
	if e.CategoryCount != nil {
		var cats []notify.Category
		if e.Category != "" {
			c, err := notify.ParseCategory(e.Category)
			if err != nil {
				failf("%v", err)
			} else {
				cats = append(cats, c)
			}
		}
		if got := msgq.CountByCategory(cats...); got != *e.CategoryCount {
			failf("category_count(%s) = %d, want %d", e.Category, got, *e.CategoryCount)
		}
	}
	if e.StickyCount != nil {
		if got := msgq.CountSticky(); got != *e.StickyCount {
			failf("sticky_count = %d, want %d", got, *e.StickyCount)
		}
	}
	if e.Has != "" {
		c, err := notify.ParseCategory(e.Has)
		if err != nil {
			failf("%v", err)
		} else if !msgq.HasCategory(c) {
			failf("has(%s) = false, want true", c)
		}
	}
	if e.MostRecent != "" {
		n, ok := msgq.MostRecent()
		switch {
		case e.MostRecent == "none":
			if ok {
				failf("most_recent = %q, want none", n.Text)
			}
		case !ok:
			failf("most_recent = none, want %q", e.MostRecent)
		case n.ID != rp.refs[e.MostRecent]:
			failf("most_recent = %q, want ref %q", n.Text, e.MostRecent)
		}
	}

	ids := msgq.Items()
	present := func(ref string) bool {
		id, ok := rp.refs[ref]
		return ok && slices.ContainsFunc(ids, func(n notify.Notification) bool { return n.ID == id })
	}
	for _, ref := range e.Present {
		if !present(ref) {
			failf("%q absent, want present", ref)
		}
	}
	for _, ref := range e.Absent {
		if present(ref) {
			failf("%q present, want absent", ref)
		}
	}

	return msgs
}

func (rp *replay) snapshot(i int, kind Kind) Snapshot {
	s := Snapshot{
		Step:    i,
		Kind:    kind,
		Elapsed: rp.clock.Now().Sub(Epoch),
		Count:   rp.hub.Activity.ActiveCount(),
		Busy:    rp.hub.Activity.IsBusy(),
		Items:   rp.hub.Messages.Len(),
	}
	if n, ok := rp.hub.Messages.MostRecent(); ok {
		s.Latest = n.Text
	}
	return s
}
