package chromedriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-faster/jx"

	"screenshot/pkg/browser"
)

const (
	eventDOMContentLoaded = "DOMContentLoaded"
	eventNetworkIdle      = "networkIdle"

	// interceptTimeout bounds the CDP call that releases a paused request.
	interceptTimeout = 2 * time.Second
)

// addStyleScript appends a <style> element; %s is a JSON string literal.
const addStyleScript = `(() => {
	const style = document.createElement('style');
	style.textContent = %s;
	(document.head || document.documentElement).appendChild(style);
	return true;
})()`

// freezeAnimationsCSS stops CSS animations and transitions in their end state.
const freezeAnimationsCSS = `*, *::before, *::after {
	animation-delay: 0s !important;
	animation-duration: 0s !important;
	animation-iteration-count: 1 !important;
	transition: none !important;
	caret-color: transparent !important;
}`

// finishAnimationsScript fast-forwards finite Web Animations and cancels infinite ones.
const finishAnimationsScript = `(() => {
	if (!document.getAnimations) return 0;
	let n = 0;
	for (const a of document.getAnimations()) {
		try {
			const timing = a.effect && a.effect.getComputedTiming ? a.effect.getComputedTiming() : null;
			if (timing && timing.iterations === Infinity) a.cancel(); else a.finish();
			n++;
		} catch (e) {}
	}
	return n;
})()`

// stealthScripts run before any page script of every document so the tab
// does not advertise itself as automated.
var stealthScripts = []string{ //nolint: gochecknoglobals
	"Object.defineProperty(navigator, 'webdriver', { get: () => undefined });",
	"window.chrome = window.chrome || {}; window.chrome.runtime = window.chrome.runtime || {};",
	"Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });",
	`(() => {
	const query = window.navigator.permissions && window.navigator.permissions.query;
	if (!query) return;
	window.navigator.permissions.query = (parameters) => (parameters && parameters.name === 'notifications'
		? Promise.resolve({ state: 'default' })
		: query.call(window.navigator.permissions, parameters));
})();`,
}

// hideAutomation disables the automation override and installs stealthScripts.
func hideAutomation(ctx context.Context) error {
	if err := emulation.SetAutomationOverride(false).Do(ctx); err != nil {
		return fmt.Errorf("could not disable automation override: %w", err)
	}
	for _, script := range stealthScripts {
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("could not install stealth script: %w", err)
		}
	}

	return nil
}

// chromePage is a single chromedp tab.
type chromePage struct {
	ctx    context.Context //nolint: containedctx
	cancel context.CancelFunc

	lifecycle *lifecycle

	mu       sync.Mutex
	route    browser.RouteHandler
	loaderID string
}

var _ browser.Page = (*chromePage)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc) *chromePage {
	return &chromePage{
		ctx:       ctx,
		cancel:    cancel,
		lifecycle: newLifecycle(),
	}
}

// setup attaches the tab, subscribes to its events and applies the device and
// header profile of the browsing context.
func (p *chromePage) setup(ctx context.Context, opts browser.ContextOptions) error {
	chromedp.ListenTarget(p.ctx, p.onEvent)

	headers := make(network.Headers, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	actions := []chromedp.Action{
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		network.Enable(),
		chromedp.ActionFunc(hideAutomation),
		emulation.SetDeviceMetricsOverride(int64(opts.ViewportWidth), int64(opts.ViewportHeight),
			opts.DeviceScaleFactor, false),
	}
	if opts.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(opts.UserAgent)
		if lang, ok := opts.Headers["Accept-Language"]; ok {
			ua = ua.WithAcceptLanguage(lang)
		}
		actions = append(actions, ua)
	}
	if len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}

	if err := p.run(ctx, 0, actions...); err != nil {
		return fmt.Errorf("could not set up page: %w", err)
	}

	return nil
}

// run executes actions on the tab. The tab context carries the chromedp
// target; ctx only contributes cancellation. A positive timeout bounds the run.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", browser.ErrWaitTimeout, timeout)
	}

	return err //nolint: wrapcheck
}

// onEvent is the tab's single event listener. It must never block.
func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		p.lifecycle.observe(string(e.LoaderID), e.Name)
	case *fetch.EventRequestPaused:
		go p.resolvePaused(e)
	}
}

// resolvePaused continues or fails a request paused by the Fetch domain.
func (p *chromePage) resolvePaused(ev *fetch.EventRequestPaused) {
	p.mu.Lock()
	handler := p.route
	p.mu.Unlock()

	decision := browser.Continue
	if handler != nil && ev.Request != nil {
		decision = handler(browser.Request{
			URL:          ev.Request.URL,
			Method:       ev.Request.Method,
			ResourceType: resourceType(ev.ResourceType),
		})
	}

	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	cmdCtx, cancel := context.WithTimeout(p.ctx, interceptTimeout)
	defer cancel()
	execCtx := cdp.WithExecutor(cmdCtx, c.Target)

	if decision == browser.Abort {
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)

		return
	}
	if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
		// a request left paused would hang the page load
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx)
	}
}

// Route enables request interception for the tab.
func (p *chromePage) Route(ctx context.Context, handler browser.RouteHandler) error {
	p.mu.Lock()
	p.route = handler
	p.mu.Unlock()

	if err := p.run(ctx, 0, fetch.Enable()); err != nil {
		return fmt.Errorf("could not enable request interception: %w", err)
	}

	return nil
}

// Navigate loads url and waits for DOMContentLoaded of that navigation.
func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return fmt.Errorf("could not navigate: %w", err)
		}
		if errorText != "" {
			return fmt.Errorf("navigation failed: %s", errorText)
		}

		p.mu.Lock()
		p.loaderID = string(loaderID)
		p.mu.Unlock()

		// same-document navigations have no loader and no lifecycle events
		if loaderID == "" {
			return nil
		}

		return p.lifecycle.wait(ctx, string(loaderID), eventDOMContentLoaded)
	}))
}

// WaitNetworkIdle waits for the networkIdle lifecycle event of the last navigation.
func (p *chromePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	loaderID := p.loaderID
	p.mu.Unlock()
	if loaderID == "" {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.lifecycle.wait(waitCtx, loaderID, eventNetworkIdle)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", browser.ErrWaitTimeout, timeout)
	}

	return err
}

// Evaluate runs script and awaits a returned promise.
func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	awaitPromise := func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}
	if err := p.run(ctx, 0, chromedp.Evaluate(script, out, awaitPromise)); err != nil {
		return fmt.Errorf("could not evaluate script: %w", err)
	}

	return nil
}

// AddStyle appends a <style> element holding css.
func (p *chromePage) AddStyle(ctx context.Context, css string) error {
	var ok bool

	return p.Evaluate(ctx, fmt.Sprintf(addStyleScript, jsString(css)), &ok)
}

// Screenshot captures the viewport or the full page as PNG.
func (p *chromePage) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	if opts.DisableAnimations {
		var finished int
		if err := p.AddStyle(ctx, freezeAnimationsCSS); err != nil {
			return nil, err
		}
		if err := p.Evaluate(ctx, finishAnimationsScript, &finished); err != nil {
			return nil, err
		}
	}

	var (
		buf    []byte
		action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	)
	if opts.FullPage {
		// quality 100 selects PNG encoding
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, 0, action); err != nil {
		return nil, fmt.Errorf("could not capture screenshot: %w", err)
	}

	return buf, nil
}

// resourceType maps a DevTools resource type to its driver-neutral name.
func resourceType(t network.ResourceType) browser.ResourceType {
	if t == "" {
		return browser.ResourceOther
	}

	return browser.ResourceType(strings.ToLower(string(t)))
}

// jsString renders s as a JSON (and therefore JavaScript) string literal.
func jsString(s string) string {
	var e jx.Encoder
	e.Str(s)

	return e.String()
}
