package activity

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCounter() *Counter {
	return NewCounter(zerolog.Nop())
}

func TestCounter_StartsIdle(t *testing.T) {
	c := newCounter()

	assert.Equal(t, 0, c.ActiveCount())
	assert.False(t, c.IsBusy())
	assert.Equal(t, State{}, c.State().Get())
}

func TestCounter_BeginEnd(t *testing.T) {
	c := newCounter()

	c.Begin()
	c.Begin()
	assert.Equal(t, 2, c.ActiveCount())
	assert.True(t, c.IsBusy())

	c.End()
	assert.Equal(t, 1, c.ActiveCount())
	assert.True(t, c.IsBusy())

	c.End()
	assert.Equal(t, 0, c.ActiveCount())
	assert.False(t, c.IsBusy())
}

func TestCounter_EndClampsAtZero(t *testing.T) {
	c := newCounter()

	c.End()
	c.End()
	assert.Equal(t, 0, c.ActiveCount())

	c.Begin()
	assert.Equal(t, 1, c.ActiveCount(), "extra ends are not banked")
}

func TestCounter_RandomSequencesMatchClampedModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for range 50 {
		c := newCounter()
		want := 0

		for range 200 {
			if rng.IntN(2) == 0 {
				c.Begin()
				want++
			} else {
				c.End()
				want = max(0, want-1)
			}

			require.Equal(t, want, c.ActiveCount())
			require.Equal(t, want > 0, c.IsBusy())
			require.Equal(t, State{Count: want, Busy: want > 0}, c.State().Get())
		}
	}
}

func TestCounter_StatePublishesEveryMutation(t *testing.T) {
	c := newCounter()

	var got []State
	c.State().Subscribe(func(s State) { got = append(got, s) })

	c.Begin()
	c.Begin()
	c.End()
	c.End()
	c.End()

	assert.Equal(t, []State{
		{Count: 1, Busy: true},
		{Count: 2, Busy: true},
		{Count: 1, Busy: true},
		{Count: 0, Busy: false},
		{Count: 0, Busy: false},
	}, got)
}

func TestCounter_DoCountsDuringOp(t *testing.T) {
	c := newCounter()

	err := c.Do(context.Background(), Track, func(ctx context.Context) error {
		assert.Equal(t, 1, c.ActiveCount())
		assert.True(t, Tracked(ctx))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, c.ActiveCount())
}

func TestCounter_DoPropagatesErrorUnchanged(t *testing.T) {
	c := newCounter()
	sentinel := errors.New("save failed")

	err := c.Do(context.Background(), Track, func(context.Context) error {
		return sentinel
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 0, c.ActiveCount())
}

func TestCounter_DoSkipNeverCounts(t *testing.T) {
	c := newCounter()

	var got []State
	c.State().Subscribe(func(s State) { got = append(got, s) })

	err := c.Do(context.Background(), Skip, func(ctx context.Context) error {
		assert.Equal(t, 0, c.ActiveCount())
		assert.False(t, Tracked(ctx), "skip marker does not reach the op as tracking")
		return errors.New("ignored")
	})

	require.Error(t, err)
	assert.Empty(t, got, "skip publishes nothing")
	assert.Equal(t, uint64(0), c.State().Version())
}

func TestCounter_DoBalancesOnPanic(t *testing.T) {
	c := newCounter()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = c.Do(context.Background(), Track, func(context.Context) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, c.ActiveCount())
}

func TestCounter_DoBalancesOnCancellation(t *testing.T) {
	c := newCounter()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- c.Do(ctx, Track, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-started
	assert.Equal(t, 1, c.ActiveCount())

	cancel()
	err := <-done

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.ActiveCount())
}

func TestWrap_ReturnsValue(t *testing.T) {
	c := newCounter()

	got, err := Wrap(context.Background(), c, Track, func(context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 0, c.ActiveCount())
}

func TestWrap_BeginEndPairs(t *testing.T) {
	c := newCounter()

	var got []State
	c.State().Subscribe(func(s State) { got = append(got, s) })

	_, _ = Wrap(context.Background(), c, Track, func(context.Context) (int, error) {
		return 0, errors.New("nope")
	})
	_, _ = Wrap(context.Background(), c, Track, func(context.Context) (int, error) {
		return 1, nil
	})

	assert.Equal(t, []State{
		{Count: 1, Busy: true}, {Count: 0, Busy: false},
		{Count: 1, Busy: true}, {Count: 0, Busy: false},
	}, got)
}

func TestCounter_ThreeConcurrentFailuresSettleToZero(t *testing.T) {
	c := newCounter()

	release := make([]chan struct{}, 3)
	results := make([]<-chan error, 3)
	for i := range release {
		release[i] = make(chan struct{})
		gate := release[i]
		results[i] = c.Go(context.Background(), Track, func(context.Context) error {
			<-gate
			return errors.New("failed")
		})
	}

	assert.Equal(t, 3, c.ActiveCount())

	// settle out of start order
	for _, i := range []int{2, 0, 1} {
		close(release[i])
		require.Error(t, <-results[i])
	}

	assert.Equal(t, 0, c.ActiveCount())
	assert.False(t, c.IsBusy())
}

func TestCounter_GoSkip(t *testing.T) {
	c := newCounter()

	err := <-c.Go(context.Background(), Skip, func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.State().Version())
}

func TestCounter_ConcurrentBeginEndNeverNegative(t *testing.T) {
	c := newCounter()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Begin()
		}()
		go func() {
			defer wg.Done()
			c.End()
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, c.ActiveCount(), 0)
	assert.LessOrEqual(t, c.ActiveCount(), 100)
}

func TestTracking_String(t *testing.T) {
	assert.Equal(t, "track", Track.String())
	assert.Equal(t, "skip", Skip.String())
}
