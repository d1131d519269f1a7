// Package session owns the process-wide browser. The browser is launched once,
// lazily or at startup, and every capture gets its own isolated browsing
// context with a fixed desktop profile.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"screenshot/internal/config"
	"screenshot/pkg/browser"
	"screenshot/pkg/logger"
	"screenshot/pkg/serrors"
)

// Options configure the browser launch and the browsing context profile.
type Options struct {
	Launch  browser.LaunchOptions
	Context browser.ContextOptions
	// MaxContexts bounds simultaneously open browsing contexts. Zero disables
	// the bound.
	MaxContexts int
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Launch: browser.LaunchOptions{
			ExecPath:  cfg.Browser.ExecPath,
			Headless:  cfg.Browser.Headless,
			NoSandbox: cfg.Browser.NoSandbox,
		},
		Context: browser.ContextOptions{
			ViewportWidth:     cfg.Browser.ViewportWidth,
			ViewportHeight:    cfg.Browser.ViewportHeight,
			DeviceScaleFactor: cfg.Browser.DeviceScaleFactor,
			UserAgent:         cfg.Browser.UserAgent,
			Headers: map[string]string{
				"Accept":          cfg.Browser.Accept,
				"Accept-Language": cfg.Browser.AcceptLanguage,
			},
		},
		MaxContexts: cfg.Browser.MaxContexts,
	}
}

// Pool holds the single live browser.
type Pool struct {
	engine  browser.Engine
	options Options

	mu       sync.Mutex
	browser  browser.Browser
	contexts int
}

// New creates a pool. No browser is launched until Init or Context is called.
func New(engine browser.Engine, options Options) *Pool {
	p := &Pool{engine: engine, options: options}
	p.registerMetrics()

	return p
}

// Init launches the browser unless it is already running.
func (p *Pool) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.initLocked(ctx)
}

func (p *Pool) initLocked(ctx context.Context) error {
	if p.browser != nil {
		return nil
	}

	b, err := p.engine.Launch(ctx, p.options.Launch)
	if err != nil {
		return fmt.Errorf("could not launch browser: %w", err)
	}
	p.browser = b
	logger.Info(ctx, "browser launched",
		zap.Bool("headless", p.options.Launch.Headless),
		zap.Bool("noSandbox", p.options.Launch.NoSandbox))

	return nil
}

// Context opens a new isolated browsing context, launching the browser first
// if needed. It fails immediately with ErrUnavailable when MaxContexts
// contexts are already open. A browser found dead is relaunched once.
func (p *Pool) Context(ctx context.Context) (browser.BrowsingContext, error) {
	for attempt := 0; ; attempt++ {
		b, err := p.reserve(ctx)
		if err != nil {
			return nil, err
		}

		bc, err := b.NewContext(ctx, p.options.Context)
		if err == nil {
			return &trackedContext{BrowsingContext: bc, release: p.release}, nil
		}
		p.release()

		if errors.Is(err, browser.ErrBrowserClosed) {
			p.discard(ctx, b)
			if attempt == 0 {
				continue
			}
		}

		return nil, fmt.Errorf("could not create browsing context: %w", err)
	}
}

// reserve launches the browser if needed and takes a context slot.
func (p *Pool) reserve(ctx context.Context) (browser.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.initLocked(ctx); err != nil {
		return nil, err
	}
	if p.options.MaxContexts > 0 && p.contexts >= p.options.MaxContexts {
		return nil, serrors.With(serrors.ErrUnavailable, "browser context limit of %d reached", p.options.MaxContexts)
	}
	p.contexts++

	return p.browser, nil
}

// discard forgets a browser whose process is gone so the next call relaunches.
func (p *Pool) discard(ctx context.Context, b browser.Browser) {
	p.mu.Lock()
	if p.browser != b {
		p.mu.Unlock()

		return
	}
	p.browser = nil
	p.mu.Unlock()

	logger.Warn(ctx, "browser process is gone, it will be relaunched")
	if err := b.Close(ctx); err != nil {
		logger.Debug(ctx, "could not release dead browser", zap.Error(err))
	}
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts--
}

// Close terminates the browser. The pool can be initialized again afterwards.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	b := p.browser
	p.browser = nil
	p.mu.Unlock()

	if b == nil {
		return nil
	}
	if err := b.Close(ctx); err != nil {
		return fmt.Errorf("could not close browser: %w", err)
	}
	logger.Info(ctx, "browser closed")

	return nil
}

// Live reports whether the browser is running.
func (p *Pool) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.browser != nil
}

// ActiveContexts returns the number of open browsing contexts.
func (p *Pool) ActiveContexts() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.contexts
}

func (p *Pool) registerMetrics() {
	meter := otel.Meter("screenshot/internal/session")

	open, err := meter.Int64ObservableGauge("screenshot_browser_contexts",
		metric.WithDescription("Open browsing contexts"))
	if err != nil {
		return
	}
	_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(open, int64(p.ActiveContexts()))

		return nil
	}, open)
}

// trackedContext gives its slot back to the pool on the first Close.
type trackedContext struct {
	browser.BrowsingContext

	once    sync.Once
	release func()
}

func (c *trackedContext) Close(ctx context.Context) error {
	err := c.BrowsingContext.Close(ctx)
	c.once.Do(c.release)

	return err //nolint: wrapcheck
}
