package limiter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screenshot/internal/limiter"
)

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

func TestLimiter_BoundsInFlight(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 5})
	ctx := context.Background()

	var (
		active, peak atomic.Int32
		release      = make(chan struct{})
		wg           sync.WaitGroup
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Run(ctx, func(context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				active.Add(-1)

				return nil
			})
		}()
	}

	waitFor(t, func() bool {
		s := l.Stats()

		return s.InFlight == 5 && s.Waiting == 1
	})
	require.EqualValues(t, 5, active.Load())

	close(release)
	wg.Wait()

	require.EqualValues(t, 5, peak.Load())
	require.Equal(t, limiter.Stats{InFlight: 0, Waiting: 0, Max: 5}, l.Stats())
}

func TestLimiter_FIFO(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 1})
	ctx := context.Background()

	first, err := l.Acquire(ctx)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	for i, name := range []string{"A", "B", "C"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Run(ctx, func(context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()

				return nil
			})
		}()
		// enqueue in a known order
		waitFor(t, func() bool { return l.Stats().Waiting == i+1 })
	}

	first.Release()
	wg.Wait()

	require.Equal(t, []string{"A", "B", "C"}, order)
}

func TestLimiter_NoBargingPastWaiters(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 1})
	ctx := context.Background()

	holder, err := l.Acquire(ctx)
	require.NoError(t, err)

	admitted := make(chan *limiter.Token)
	go func() {
		tok, _ := l.Acquire(ctx)
		admitted <- tok
	}()
	waitFor(t, func() bool { return l.Stats().Waiting == 1 })

	holder.Release()
	tok := <-admitted

	// the slot went to the waiter, so a newcomer must queue
	require.Equal(t, limiter.Stats{InFlight: 1, Waiting: 0, Max: 1}, l.Stats())
	tok.Release()
	require.Zero(t, l.Stats().InFlight)
}

func TestLimiter_CancelledWaiterLeavesQueue(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 1})

	holder, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ran := atomic.Bool{}
	go func() {
		done <- l.Run(ctx, func(context.Context) error {
			ran.Store(true)

			return nil
		})
	}()
	waitFor(t, func() bool { return l.Stats().Waiting == 1 })

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.False(t, ran.Load())
	require.Zero(t, l.Stats().Waiting)

	holder.Release()
	require.Equal(t, limiter.Stats{InFlight: 0, Waiting: 0, Max: 1}, l.Stats())
}

func TestLimiter_ReleaseIsIdempotent(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 2})

	tok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	tok.Release()
	tok.Release()

	require.Zero(t, l.Stats().InFlight)
}

func TestLimiter_RunReleasesOnErrorAndPanic(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 1})
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, l.Run(ctx, func(context.Context) error { return boom }), boom)
	require.Zero(t, l.Stats().InFlight)

	require.Panics(t, func() {
		_ = l.Run(ctx, func(context.Context) error { panic("boom") })
	})
	require.Zero(t, l.Stats().InFlight)
}

func TestLimiter_NonPositiveMax(t *testing.T) {
	require.Equal(t, 1, limiter.New(limiter.Options{}).Stats().Max)
}
