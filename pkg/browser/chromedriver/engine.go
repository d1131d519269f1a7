// Package chromedriver implements the browser capabilities on top of chromedp,
// driving a local Chrome/Chromium over the DevTools protocol. One Engine
// launches one browser process per Launch call; browsing contexts map to CDP
// browser contexts so cookies and storage never leak between captures.
package chromedriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"screenshot/pkg/browser"
)

// Options configure the driver's own diagnostics.
type Options struct {
	// Logf receives chromedp's informational messages.
	Logf func(format string, args ...any)
	// Errorf receives chromedp's error messages (e.g. undecodable events).
	Errorf func(format string, args ...any)
}

// Engine launches Chrome processes through a chromedp exec allocator.
type Engine struct {
	options Options
}

var _ browser.Engine = (*Engine)(nil)

// New constructs an Engine.
func New(options Options) *Engine {
	return &Engine{options: options}
}

// launchFlags returns the Chrome switches applied on top of chromedp's
// defaults. Automation markers are turned off so pages see an ordinary browser.
func launchFlags(opts browser.LaunchOptions) map[string]any {
	flags := map[string]any{
		"disable-gpu":                   true,
		"disable-dev-shm-usage":         true,
		"disable-accelerated-2d-canvas": true,
		"mute-audio":                    true,
		"hide-scrollbars":               true,
		"enable-automation":             false,
		"disable-blink-features":        "AutomationControlled",
	}
	if !opts.Headless {
		flags["headless"] = false
	}
	if opts.NoSandbox {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	for name, value := range opts.Flags {
		flags[name] = value
	}

	return flags
}

// allocatorOptions translates LaunchOptions into chromedp exec allocator options.
func allocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(opts) {
		out = append(out, chromedp.Flag(name, value))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}

	return out
}

// Launch starts a Chrome process. The process is detached from ctx and lives
// until Browser.Close.
func (e *Engine) Launch(_ context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)

	var ctxOpts []chromedp.ContextOption
	if e.options.Logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(e.options.Logf))
	}
	if e.options.Errorf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithErrorf(e.options.Errorf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// running an empty task list starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()

		return nil, fmt.Errorf("could not start browser: %w", err)
	}

	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

// chromeBrowser is a running Chrome process.
type chromeBrowser struct {
	ctx         context.Context //nolint: containedctx
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewContext creates a CDP browser context with its first tab attached.
func (b *chromeBrowser) NewContext(_ context.Context, opts browser.ContextOptions) (browser.BrowsingContext, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrBrowserClosed, err)
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		// chromedp cancels the browser context when the process exits
		if b.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", browser.ErrBrowserClosed, err)
		}

		return nil, fmt.Errorf("could not create browser context: %w", err)
	}

	return &browsingContext{ctx: tabCtx, cancel: cancel, opts: opts}, nil
}

// Close terminates Chrome gracefully and releases the allocator.
func (b *chromeBrowser) Close(context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		err = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
	})
	if err != nil {
		return fmt.Errorf("could not close browser: %w", err)
	}

	return nil
}

// browsingContext wraps the first tab of a CDP browser context. Closing it
// disposes of the CDP browser context along with all its tabs.
type browsingContext struct {
	ctx    context.Context //nolint: containedctx
	cancel context.CancelFunc
	opts   browser.ContextOptions

	mu        sync.Mutex
	firstUsed bool
	closeOnce sync.Once
}

// NewPage returns the context's first tab on the first call and opens
// additional tabs in the same browser context afterwards.
func (c *browsingContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	first := !c.firstUsed
	c.firstUsed = true
	c.mu.Unlock()

	tabCtx, cancel := c.ctx, context.CancelFunc(func() {})
	if !first {
		tabCtx, cancel = chromedp.NewContext(c.ctx)
	}

	p := newPage(tabCtx, cancel)
	if err := p.setup(ctx, c.opts); err != nil {
		cancel()

		return nil, err
	}

	return p, nil
}

// Close disposes of the browser context.
func (c *browsingContext) Close(context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = chromedp.Cancel(c.ctx)
		c.cancel()
	})
	if err != nil {
		return fmt.Errorf("could not close browser context: %w", err)
	}

	return nil
}
