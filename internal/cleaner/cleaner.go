// Package cleaner removes visual clutter (cookie banners, ads, chat widgets,
// modals and fixed overlays) from a loaded page before it is rasterized.
//
// The cleaner only needs to inject styles and run scripts, so it works on any
// Scripter and is tested against a fake page. Cleaning is best effort: every
// heuristic runs even if an earlier one failed, and failures end up in the
// Report instead of failing the capture.
package cleaner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"screenshot/internal/config"
	"screenshot/pkg/logger"
)

// Scripter is the page capability the cleaner relies on.
type Scripter interface {
	// AddStyle injects a stylesheet into the page.
	AddStyle(ctx context.Context, css string) error
	// Evaluate runs script in the page and decodes its result into out.
	Evaluate(ctx context.Context, script string, out any) error
}

// Heuristic is a single cleaning step. Implementations must be idempotent and
// must succeed on pages where none of their targets exist.
type Heuristic interface {
	Name() string
	// Apply cleans the page and returns how many elements it removed.
	Apply(ctx context.Context, s Scripter) (int, error)
}

// Options configure the default heuristics.
type Options struct {
	// BottomFraction is the fraction of the viewport height at or below which
	// the top edge of a fixed element marks it as a bottom bar.
	BottomFraction float64
	// ZIndexThreshold is the z-index above which a full-viewport fixed element
	// is treated as an overlay.
	ZIndexThreshold int
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		BottomFraction:  cfg.Cleaner.BottomFraction,
		ZIndexThreshold: cfg.Cleaner.ZIndexThreshold,
	}
}

// Outcome is the result of one heuristic.
type Outcome struct {
	Name    string
	Removed int
	Err     error
}

// Report collects the outcomes of a Clean call in application order.
type Report struct {
	Outcomes []Outcome
}

// Removed returns the number of elements removed by all heuristics.
func (r Report) Removed() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Removed
	}

	return n
}

// Err joins the errors of failed heuristics, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}

	return errors.Join(errs...)
}

// Cleaner applies heuristics in order.
type Cleaner struct {
	heuristics []Heuristic
}

// New creates a cleaner with the default heuristics: static suppression,
// overlay removal and fixed element removal.
func New(options Options) *Cleaner {
	return NewWith(
		StaticSuppression{},
		OverlayRemoval{},
		FixedElementRemoval{
			BottomFraction:  options.BottomFraction,
			ZIndexThreshold: options.ZIndexThreshold,
		},
	)
}

// NewWith creates a cleaner applying the given heuristics.
func NewWith(heuristics ...Heuristic) *Cleaner {
	return &Cleaner{heuristics: heuristics}
}

// Clean runs every heuristic against the page. It never fails; the report
// tells what happened.
func (c *Cleaner) Clean(ctx context.Context, s Scripter) Report {
	report := Report{Outcomes: make([]Outcome, 0, len(c.heuristics))}
	for _, h := range c.heuristics {
		removed, err := h.Apply(ctx, s)
		report.Outcomes = append(report.Outcomes, Outcome{Name: h.Name(), Removed: removed, Err: err})
		if err != nil {
			logger.Warn(ctx, "cleaning heuristic failed", zap.String("heuristic", h.Name()), zap.Error(err))
		}
	}

	logger.Debug(ctx, "page cleaned", zap.Int("removed", report.Removed()))

	return report
}
