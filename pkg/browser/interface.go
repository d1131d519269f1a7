// Package browser defines the capabilities the capture pipeline needs from a
// browser-automation driver: launching a browser, opening isolated browsing
// contexts, navigating, evaluating scripts, intercepting requests and taking
// raster captures. Concrete drivers live in sub-packages; browsertest holds an
// in-memory fake for tests.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by waits that gave up after their own timeout
// elapsed, as opposed to the caller's context ending.
var ErrWaitTimeout = errors.New("wait timed out")

// ErrBrowserClosed is returned by Browser.NewContext once the browser process
// is gone, whether closed or crashed.
var ErrBrowserClosed = errors.New("browser is closed")

// ResourceType classifies an outgoing request. Values are lower-case
// DevTools resource type names.
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceImage      ResourceType = "image"
	ResourceMedia      ResourceType = "media"
	ResourceFont       ResourceType = "font"
	ResourceScript     ResourceType = "script"
	ResourceXHR        ResourceType = "xhr"
	ResourceFetch      ResourceType = "fetch"
	ResourceWebSocket  ResourceType = "websocket"
	ResourceManifest   ResourceType = "manifest"
	ResourceOther      ResourceType = "other"
)

// Request is the view of an intercepted network request handed to a route handler.
type Request struct {
	URL          string
	Method       string
	ResourceType ResourceType
}

// RouteDecision tells the driver what to do with an intercepted request.
type RouteDecision int

const (
	// Continue lets the request through unmodified.
	Continue RouteDecision = iota
	// Abort fails the request as if blocked by the client.
	Abort
)

// RouteHandler decides the fate of every request issued by a page. It is
// called concurrently and must not block.
type RouteHandler func(req Request) RouteDecision

// LaunchOptions configure the browser process.
type LaunchOptions struct {
	// ExecPath overrides the browser binary; empty means auto-detect.
	ExecPath string
	// Headless runs the browser without a window.
	Headless bool
	// NoSandbox disables the OS sandbox, which is required in most containers.
	NoSandbox bool
	// Flags are additional command-line switches (name without leading dashes).
	Flags map[string]any
}

// ContextOptions is the fixed device and header profile applied to every page
// of a browsing context.
type ContextOptions struct {
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	UserAgent         string
	// Headers are sent with every request of the context.
	Headers map[string]string
}

// ScreenshotOptions control rasterization.
type ScreenshotOptions struct {
	// FullPage captures the whole scrollable page instead of the viewport.
	FullPage bool
	// DisableAnimations freezes CSS animations and transitions before capturing.
	DisableAnimations bool
}

// Engine launches browser processes.
type Engine interface {
	// Launch starts a new browser process. The process outlives ctx; it is
	// terminated by Browser.Close.
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a live browser process.
type Browser interface {
	// NewContext opens an isolated browsing context (own cookies and storage).
	NewContext(ctx context.Context, opts ContextOptions) (BrowsingContext, error)
	// Close terminates the browser process and every context in it.
	Close(ctx context.Context) error
}

// BrowsingContext is an isolated sandbox inside a Browser.
type BrowsingContext interface {
	// NewPage opens a page (tab) inside the context.
	NewPage(ctx context.Context) (Page, error)
	// Close disposes of the context and all its pages.
	Close(ctx context.Context) error
}

// Scripter is the page-scripting capability: injecting styles and evaluating
// scripts against the live document.
type Scripter interface {
	// AddStyle appends a <style> element with the given CSS to the document.
	AddStyle(ctx context.Context, css string) error
	// Evaluate runs script in the page, awaiting a returned promise, and
	// decodes the JSON-serializable result into out. out may be nil.
	Evaluate(ctx context.Context, script string, out any) error
}

// Page is a single tab.
type Page interface {
	Scripter

	// Route installs handler for every subsequent request of the page.
	Route(ctx context.Context, handler RouteHandler) error
	// Navigate loads url and returns once the DOM is ready (DOMContentLoaded).
	// It fails when the navigation errors or timeout elapses first.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitNetworkIdle waits for the network-idle signal of the last
	// navigation. It returns ErrWaitTimeout when timeout elapses first.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// Screenshot rasterizes the page as PNG.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
}
