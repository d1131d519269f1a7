package chromedriver

import (
	"context"
	"sync"
)

// lifecycle remembers the page lifecycle events seen per loader so waits can
// start after the event already fired. Lifecycle events may arrive before
// page.Navigate returns the loader ID they belong to.
type lifecycle struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	changed chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		seen:    make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

func lifecycleKey(loaderID, name string) string { return loaderID + "/" + name }

// observe records an event and wakes every waiter.
func (l *lifecycle) observe(loaderID, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seen[lifecycleKey(loaderID, name)] = struct{}{}
	close(l.changed)
	l.changed = make(chan struct{})
}

// wait blocks until the named event was observed for loaderID or ctx ends.
func (l *lifecycle) wait(ctx context.Context, loaderID, name string) error {
	key := lifecycleKey(loaderID, name)
	for {
		l.mu.Lock()
		_, ok := l.seen[key]
		changed := l.changed
		l.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
