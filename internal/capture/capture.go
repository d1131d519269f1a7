// Package capture drives a single screenshot: it opens an isolated browsing
// context, filters the page's requests, loads the page and lets it settle,
// cleans up clutter and rasterizes the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"screenshot/internal/cleaner"
	"screenshot/internal/config"
	"screenshot/pkg/browser"
	"screenshot/pkg/domain"
	"screenshot/pkg/logger"
	"screenshot/pkg/metrics"
	"screenshot/pkg/serrors"
)

const (
	instrumentationName = "screenshot/internal/capture"
	// closeTimeout bounds disposing of the browsing context after a capture.
	closeTimeout = 5 * time.Second
)

// scrollScript scrolls down in steps to trigger lazy loading and resolves with
// the distance scrolled. Arguments: step in px, max viewports, interval in ms.
const scrollScript = `new Promise((resolve) => {
	const step = %d;
	const maxScroll = window.innerHeight * %d;
	let total = 0;
	const timer = setInterval(() => {
		const scrollHeight = document.body ? document.body.scrollHeight : 0;
		window.scrollBy(0, step);
		total += step;
		if (total >= maxScroll || total >= scrollHeight) {
			clearInterval(timer);
			resolve(total);
		}
	}, %d);
})`

const scrollTopScript = `(() => { window.scrollTo(0, 0); return true; })()`

// ContextProvider hands out isolated browsing contexts.
type ContextProvider interface {
	Context(ctx context.Context) (browser.BrowsingContext, error)
}

// Cleaner removes clutter from a loaded page.
type Cleaner interface {
	Clean(ctx context.Context, s cleaner.Scripter) cleaner.Report
}

// Options configure the capture pipeline.
type Options struct {
	// NavigationTimeout bounds loading the page up to DOMContentLoaded.
	NavigationTimeout time.Duration
	// NetworkIdleTimeout bounds the optional wait for network idle.
	NetworkIdleTimeout time.Duration
	// ScrollStep, ScrollInterval and ScrollMaxViewports shape the lazy-load scroll.
	ScrollStep         int
	ScrollInterval     time.Duration
	ScrollMaxViewports int
	// ScrollTimeout bounds the whole scroll.
	ScrollTimeout time.Duration
	// SettleDelay is waited before cleaning and rasterizing.
	SettleDelay time.Duration
	// BlockedResourceTypes are aborted by the request filter.
	BlockedResourceTypes []browser.ResourceType
	// TrackerPattern matches tracker URLs to abort. Empty disables tracker blocking.
	TrackerPattern string
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	blocked := make([]browser.ResourceType, 0, len(cfg.Capture.BlockedResourceTypes))
	for _, t := range cfg.Capture.BlockedResourceTypes {
		blocked = append(blocked, browser.ResourceType(t))
	}

	return Options{
		NavigationTimeout:    cfg.Capture.NavigationTimeout,
		NetworkIdleTimeout:   cfg.Capture.NetworkIdleTimeout,
		ScrollStep:           cfg.Capture.ScrollStep,
		ScrollInterval:       cfg.Capture.ScrollInterval,
		ScrollMaxViewports:   cfg.Capture.ScrollMaxViewports,
		ScrollTimeout:        cfg.Capture.ScrollTimeout,
		SettleDelay:          cfg.Capture.SettleDelay,
		BlockedResourceTypes: blocked,
		TrackerPattern:       cfg.Capture.TrackerPattern,
	}
}

// Orchestrator implements Capturer on top of a ContextProvider.
type Orchestrator struct {
	options  Options
	contexts ContextProvider
	cleaner  Cleaner
	trackers *regexp.Regexp

	tracer   trace.Tracer
	duration metric.Float64Histogram
	results  metric.Int64Counter
}

var _ Capturer = (*Orchestrator)(nil)

// New creates an orchestrator. It fails when the tracker pattern does not compile.
func New(contexts ContextProvider, c Cleaner, options Options) (*Orchestrator, error) {
	o := &Orchestrator{
		options:  options,
		contexts: contexts,
		cleaner:  c,
		tracer:   otel.Tracer(instrumentationName),
	}
	if options.TrackerPattern != "" {
		re, err := regexp.Compile(options.TrackerPattern)
		if err != nil {
			return nil, serrors.Wrap(serrors.ErrBadRequest, err, "invalid tracker pattern")
		}
		o.trackers = re
	}

	meter := otel.Meter(instrumentationName)
	var err error
	o.duration, err = meter.Float64Histogram("screenshot_capture_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of browser captures"),
		metric.WithExplicitBucketBoundaries(metrics.DefaultBuckets...))
	if err != nil {
		return nil, fmt.Errorf("could not create duration histogram: %w", err)
	}
	o.results, err = meter.Int64Counter("screenshot_captures",
		metric.WithDescription("Browser captures by result"))
	if err != nil {
		return nil, fmt.Errorf("could not create results counter: %w", err)
	}

	return o, nil
}

// Capture implements Capturer.
func (o *Orchestrator) Capture(ctx context.Context, req domain.CaptureRequest) ([]byte, error) {
	ctx = logger.WithFields(ctx, zap.String("url", req.URL), zap.Bool("fullPage", req.FullPage))
	ctx, span := o.tracer.Start(ctx, "capture", trace.WithAttributes(
		attribute.String("url", req.URL),
		attribute.Bool("fullPage", req.FullPage),
	))
	defer span.End()

	start := time.Now()
	img, err := o.capture(ctx, req)
	elapsed := time.Since(start)

	result := "success"
	if err != nil {
		result = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn(ctx, "capture failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		logger.Info(ctx, "captured page", zap.Duration("elapsed", elapsed), zap.Int("bytes", len(img)))
	}
	attrs := metric.WithAttributes(attribute.String("result", result), attribute.Bool("fullPage", req.FullPage))
	o.duration.Record(ctx, elapsed.Seconds(), attrs)
	o.results.Add(ctx, 1, attrs)

	return img, err
}

func (o *Orchestrator) capture(ctx context.Context, req domain.CaptureRequest) ([]byte, error) {
	bc, err := o.contexts.Context(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not acquire browsing context: %w", err)
	}
	defer func() {
		// the caller may be gone; the context must be disposed of regardless
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := bc.Close(closeCtx); err != nil {
			logger.Warn(ctx, "could not close browsing context", zap.Error(err))
		}
	}()

	page, err := bc.NewPage(ctx)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrInternal, err, "could not open page")
	}

	filter := NewRequestFilter(o.options.BlockedResourceTypes, o.trackers, req.URL)
	if err := page.Route(ctx, filter.Decide); err != nil {
		return nil, serrors.Wrap(serrors.ErrInternal, err, "could not install request filter")
	}
	defer func() {
		logger.Debug(ctx, "request filter done", zap.Int64("aborted", filter.Aborted()))
	}()

	if err := o.load(ctx, page, req.URL); err != nil {
		return nil, err
	}

	o.stabilize(ctx, page)
	if err := o.settle(ctx); err != nil {
		return nil, err
	}

	o.clean(ctx, page)

	_, span := o.tracer.Start(ctx, "rasterize")
	img, err := page.Screenshot(ctx, browser.ScreenshotOptions{FullPage: req.FullPage, DisableAnimations: true})
	span.End()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("capture aborted: %w", ctxErr)
		}

		return nil, serrors.Wrap(serrors.ErrInternal, err, "could not rasterize page")
	}

	return img, nil
}

// load navigates and waits for DOMContentLoaded. Its failure fails the capture.
func (o *Orchestrator) load(ctx context.Context, page browser.Page, url string) error {
	ctx, span := o.tracer.Start(ctx, "navigate")
	defer span.End()

	err := page.Navigate(ctx, url, o.options.NavigationTimeout)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("capture aborted: %w", ctx.Err())
	case errors.Is(err, browser.ErrWaitTimeout):
		return serrors.Wrap(serrors.ErrTimeout, err, "page did not load within %s", o.options.NavigationTimeout)
	default:
		return serrors.Wrap(serrors.ErrUnavailable, err, "could not load page")
	}
}

// stabilize gives the page a chance to finish loading: it waits for network
// idle and scrolls down to trigger lazy loading, then back to the top. Every
// step is optional; failures are logged and the capture goes on.
func (o *Orchestrator) stabilize(ctx context.Context, page browser.Page) {
	ctx, span := o.tracer.Start(ctx, "stabilize")
	defer span.End()

	if err := page.WaitNetworkIdle(ctx, o.options.NetworkIdleTimeout); err != nil && ctx.Err() == nil {
		logger.Info(ctx, "network did not become idle, proceeding", zap.Error(err))
	}

	if o.options.ScrollStep > 0 && o.options.ScrollMaxViewports > 0 {
		scrollCtx, cancel := context.WithTimeout(ctx, o.options.ScrollTimeout)
		var scrolled int
		script := fmt.Sprintf(scrollScript, o.options.ScrollStep, o.options.ScrollMaxViewports,
			o.options.ScrollInterval.Milliseconds())
		if err := page.Evaluate(scrollCtx, script, &scrolled); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "could not scroll page", zap.Error(err))
		}
		cancel()
		logger.Debug(ctx, "scrolled page", zap.Int("distance", scrolled))
	}

	if err := page.Evaluate(ctx, scrollTopScript, nil); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "could not scroll back to top", zap.Error(err))
	}
}

// settle waits for late renders and animations.
func (o *Orchestrator) settle(ctx context.Context) error {
	if o.options.SettleDelay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(o.options.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("capture aborted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) clean(ctx context.Context, page browser.Page) {
	if o.cleaner == nil {
		return
	}
	ctx, span := o.tracer.Start(ctx, "clean")
	defer span.End()

	report := o.cleaner.Clean(ctx, page)
	fields := make([]zap.Field, 0, len(report.Outcomes)+1)
	for _, outcome := range report.Outcomes {
		fields = append(fields, zap.Int(outcome.Name, outcome.Removed))
	}
	if err := report.Err(); err != nil {
		fields = append(fields, zap.NamedError("ignored", err))
	}
	logger.Debug(ctx, "cleaned page", fields...)
}
