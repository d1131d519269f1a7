// Package limiter bounds how many captures run at once. Requests beyond the
// bound wait in strict arrival order; a freed slot is handed directly to the
// longest waiting request so late arrivals can never overtake it.
package limiter

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"screenshot/internal/config"
)

// Options configure the limiter.
type Options struct {
	// MaxConcurrent is the number of tasks allowed in flight.
	MaxConcurrent int
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{MaxConcurrent: cfg.Limiter.MaxConcurrent}
}

// Stats is a snapshot of the limiter state.
type Stats struct {
	InFlight int
	Waiting  int
	Max      int
}

// Limiter is a FIFO counting semaphore.
type Limiter struct {
	max int

	mu       sync.Mutex
	inFlight int
	waiters  *list.List // of chan struct{}
}

// New creates a limiter. A non-positive MaxConcurrent admits one task at a time.
func New(options Options) *Limiter {
	l := &Limiter{
		max:     max(options.MaxConcurrent, 1),
		waiters: list.New(),
	}
	l.registerMetrics()

	return l
}

// Token is one admitted slot. Release returns it; calling Release more than
// once has no effect.
type Token struct {
	l    *Limiter
	once sync.Once
}

// Release frees the slot, handing it to the head waiter when there is one.
func (t *Token) Release() {
	t.once.Do(t.l.release)
}

// Acquire admits the caller or queues it behind earlier callers until a slot is
// handed over. If ctx ends first the caller leaves the queue and gets ctx's
// error; it never runs.
func (l *Limiter) Acquire(ctx context.Context) (*Token, error) {
	l.mu.Lock()
	if l.inFlight < l.max && l.waiters.Len() == 0 {
		l.inFlight++
		l.mu.Unlock()

		return &Token{l: l}, nil
	}

	ready := make(chan struct{})
	elem := l.waiters.PushBack(ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return &Token{l: l}, nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// handed a slot while giving up; pass it on
			l.mu.Unlock()
			(&Token{l: l}).Release()
		default:
			l.waiters.Remove(elem)
			l.mu.Unlock()
		}

		return nil, fmt.Errorf("waiting for capture slot: %w", ctx.Err())
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// inFlight stays unchanged when the slot moves to a waiter
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{})) //nolint: forcetypeassert

		return
	}
	l.inFlight--
}

// Run executes task once admitted and releases the slot when task returns or
// panics.
func (l *Limiter) Run(ctx context.Context, task func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer token.Release()

	return task(ctx)
}

// Stats returns the current state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		InFlight: l.inFlight,
		Waiting:  l.waiters.Len(),
		Max:      l.max,
	}
}

func (l *Limiter) registerMetrics() {
	meter := otel.Meter("screenshot/internal/limiter")

	inFlight, err := meter.Int64ObservableGauge("screenshot_limiter_in_flight",
		metric.WithDescription("Captures currently running"))
	if err != nil {
		return
	}
	waiting, err := meter.Int64ObservableGauge("screenshot_limiter_waiting",
		metric.WithDescription("Captures queued for a slot"))
	if err != nil {
		return
	}

	_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := l.Stats()
		o.ObserveInt64(inFlight, int64(s.InFlight))
		o.ObserveInt64(waiting, int64(s.Waiting))

		return nil
	}, inFlight, waiting)
}
