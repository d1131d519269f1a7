// Package browsertest provides an in-memory browser.Engine for tests. Pages
// record every call made against them and can be scripted to fail or to
// answer script evaluations.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"screenshot/pkg/browser"
)

// PNG is the image every fake page returns unless Page.Image is overridden.
var PNG = []byte("\x89PNG\r\n\x1a\nfake") //nolint: gochecknoglobals

// Engine is a fake browser.Engine.
type Engine struct {
	// LaunchErr, when set, is returned by Launch.
	LaunchErr error
	// OnPage, when set, is called for every page right after it is created so
	// tests can configure failures or evaluation results.
	OnPage func(p *Page)

	mu       sync.Mutex
	browsers []*Browser
}

var _ browser.Engine = (*Engine)(nil)

// Launch returns a new fake browser.
func (e *Engine) Launch(_ context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b := &Browser{engine: e, Opts: opts}
	e.browsers = append(e.browsers, b)

	return b, nil
}

// Browsers returns every browser launched so far.
func (e *Engine) Browsers() []*Browser {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*Browser(nil), e.browsers...)
}

// Browser is a fake browser.Browser.
type Browser struct {
	Opts browser.LaunchOptions

	engine   *Engine
	mu       sync.Mutex
	closed   bool
	contexts []*Context
}

// NewContext opens a fake browsing context.
func (b *Browser) NewContext(_ context.Context, opts browser.ContextOptions) (browser.BrowsingContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, browser.ErrBrowserClosed
	}

	c := &Context{Opts: opts, engine: b.engine}
	b.contexts = append(b.contexts, c)

	return c, nil
}

// Close marks the browser closed. Calling it directly, behind the back of
// whoever holds the browser, simulates a crash.
func (b *Browser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true

	return nil
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// Contexts returns every context opened in the browser.
func (b *Browser) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Context(nil), b.contexts...)
}

// Context is a fake browser.BrowsingContext.
type Context struct {
	Opts browser.ContextOptions
	// NewPageErr, when set, is returned by NewPage.
	NewPageErr error

	engine *Engine
	mu     sync.Mutex
	closed int
	pages  []*Page
}

// NewPage opens a fake page.
func (c *Context) NewPage(context.Context) (browser.Page, error) {
	if c.NewPageErr != nil {
		return nil, c.NewPageErr
	}
	p := &Page{Image: PNG}
	if c.engine != nil && c.engine.OnPage != nil {
		c.engine.OnPage(p)
	}
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()

	return p, nil
}

// Close records the close.
func (c *Context) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++

	return nil
}

// CloseCount returns how many times Close was called.
func (c *Context) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Pages returns every page opened in the context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*Page(nil), c.pages...)
}

// Page is a fake browser.Page.
type Page struct {
	// Image is returned by Screenshot.
	Image []byte
	// Errors returned by the respective operations.
	RouteErr       error
	NavigateErr    error
	NetworkIdleErr error
	StyleErr       error
	ScreenshotErr  error
	// Eval answers Evaluate calls. The returned value is JSON round-tripped
	// into the caller's out argument. When nil, Evaluate succeeds and leaves
	// out untouched.
	Eval func(script string) (any, error)
	// NavigateDelay is slept (respecting ctx) before Navigate returns.
	NavigateDelay time.Duration

	mu          sync.Mutex
	calls       []string
	styles      []string
	scripts     []string
	screenshots []browser.ScreenshotOptions
	route       browser.RouteHandler
}

func (p *Page) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

// Route stores the handler.
func (p *Page) Route(_ context.Context, handler browser.RouteHandler) error {
	p.record("route")
	if p.RouteErr != nil {
		return p.RouteErr
	}
	p.mu.Lock()
	p.route = handler
	p.mu.Unlock()

	return nil
}

// Navigate records the navigation.
func (p *Page) Navigate(ctx context.Context, url string, _ time.Duration) error {
	p.record("navigate " + url)
	if p.NavigateDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.NavigateDelay):
		}
	}

	return p.NavigateErr
}

// WaitNetworkIdle records the wait.
func (p *Page) WaitNetworkIdle(context.Context, time.Duration) error {
	p.record("networkidle")

	return p.NetworkIdleErr
}

// AddStyle records the CSS.
func (p *Page) AddStyle(_ context.Context, css string) error {
	p.record("style")
	if p.StyleErr != nil {
		return p.StyleErr
	}
	p.mu.Lock()
	p.styles = append(p.styles, css)
	p.mu.Unlock()

	return nil
}

// Evaluate records the script and answers it through Eval.
func (p *Page) Evaluate(_ context.Context, script string, out any) error {
	p.record("evaluate")
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	p.mu.Unlock()

	if p.Eval == nil {
		return nil
	}
	v, err := p.Eval(script)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode fake result: %w", err)
	}

	return json.Unmarshal(b, out)
}

// Screenshot records the options and returns Image.
func (p *Page) Screenshot(_ context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	p.record("screenshot")
	p.mu.Lock()
	p.screenshots = append(p.screenshots, opts)
	p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}

	return append([]byte(nil), p.Image...), nil
}

// Request runs req through the installed route handler. Requests continue
// when no handler is installed.
func (p *Page) Request(req browser.Request) browser.RouteDecision {
	p.mu.Lock()
	h := p.route
	p.mu.Unlock()
	if h == nil {
		return browser.Continue
	}

	return h(req)
}

// Calls returns the ordered operation log.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.calls...)
}

// Styles returns every injected stylesheet.
func (p *Page) Styles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.styles...)
}

// Scripts returns every evaluated script.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.scripts...)
}

// Screenshots returns the options of every Screenshot call.
func (p *Page) Screenshots() []browser.ScreenshotOptions {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]browser.ScreenshotOptions(nil), p.screenshots...)
}
