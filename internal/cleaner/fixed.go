package cleaner

import (
	"context"
	"fmt"

	"github.com/go-faster/jx"
)

// candidateAttr tags collected elements so a later script can find them again.
const candidateAttr = "data-screenshot-fixed"

// collectFixedScript tags every fixed or sticky element with its candidate
// index and reports its geometry together with the viewport size.
const collectFixedScript = `(() => {
	const attr = "` + candidateAttr + `";
	const elements = [];
	let index = 0;
	for (const el of document.querySelectorAll('*')) {
		const style = window.getComputedStyle(el);
		if (style.position !== 'fixed' && style.position !== 'sticky') continue;
		const rect = el.getBoundingClientRect();
		el.setAttribute(attr, String(index));
		elements.push({
			index: index,
			tag: el.tagName.toLowerCase(),
			root: el === document.documentElement || el === document.body,
			top: rect.top,
			left: rect.left,
			width: rect.width,
			height: rect.height,
			zIndex: parseInt(style.zIndex, 10) || 0,
		});
		index++;
	}
	return {viewportWidth: window.innerWidth, viewportHeight: window.innerHeight, elements: elements};
})()`

// removeFixedScript removes the tagged candidates listed in the JSON array %s,
// untags the rest and returns how many were removed.
const removeFixedScript = `(() => {
	const attr = "` + candidateAttr + `";
	const chosen = new Set(%s);
	let removed = 0;
	for (const el of document.querySelectorAll('[' + attr + ']')) {
		const index = parseInt(el.getAttribute(attr), 10);
		el.removeAttribute(attr);
		if (chosen.has(index) && el.isConnected) {
			el.remove();
			removed++;
		}
	}
	return removed;
})()`

// Candidate is a fixed or sticky element as seen in the viewport.
type Candidate struct {
	Index  int     `json:"index"`
	Tag    string  `json:"tag"`
	Root   bool    `json:"root"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	ZIndex int     `json:"zIndex"`
}

// Layout is the result of the collect script.
type Layout struct {
	ViewportWidth  float64     `json:"viewportWidth"`
	ViewportHeight float64     `json:"viewportHeight"`
	Elements       []Candidate `json:"elements"`
}

// FixedElementRemoval removes fixed and sticky elements that obscure content:
// bars anchored in the bottom part of the viewport and full-viewport overlays
// stacked above ZIndexThreshold. Headers at the top of the page are kept.
type FixedElementRemoval struct {
	BottomFraction  float64
	ZIndexThreshold int
}

// Name implements Heuristic.
func (FixedElementRemoval) Name() string { return "fixed-element-removal" }

// Apply implements Heuristic.
func (f FixedElementRemoval) Apply(ctx context.Context, s Scripter) (int, error) {
	var layout Layout
	if err := s.Evaluate(ctx, collectFixedScript, &layout); err != nil {
		return 0, fmt.Errorf("could not collect fixed elements: %w", err)
	}
	if len(layout.Elements) == 0 {
		return 0, nil
	}

	// the remove script also untags candidates, so it runs even when nothing is chosen
	chosen := f.Select(layout)

	var removed int
	if err := s.Evaluate(ctx, fmt.Sprintf(removeFixedScript, jsonInts(chosen)), &removed); err != nil {
		return 0, fmt.Errorf("could not remove fixed elements: %w", err)
	}

	return removed, nil
}

// Select returns the indexes of the candidates to remove. The document root
// and body are never selected. An element is selected when its top edge lies
// inside the viewport at or below BottomFraction of its height, or when it
// covers the whole viewport with a z-index above ZIndexThreshold.
func (f FixedElementRemoval) Select(layout Layout) []int {
	var out []int
	for _, c := range layout.Elements {
		if c.Root || c.Tag == "html" || c.Tag == "body" {
			continue
		}
		if c.Width <= 0 || c.Height <= 0 {
			continue
		}

		bottomBar := c.Top >= f.BottomFraction*layout.ViewportHeight && c.Top < layout.ViewportHeight
		overlay := c.ZIndex > f.ZIndexThreshold &&
			c.Top <= 0 && c.Left <= 0 &&
			c.Left+c.Width >= layout.ViewportWidth &&
			c.Top+c.Height >= layout.ViewportHeight

		if bottomBar || overlay {
			out = append(out, c.Index)
		}
	}

	return out
}

func jsonInts(values []int) string {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range values {
		e.Int(v)
	}
	e.ArrEnd()

	return e.String()
}
