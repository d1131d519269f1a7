package cleaner

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/jx"
)

// blockedSelectors are hidden by StaticSuppression.
var blockedSelectors = []string{ //nolint: gochecknoglobals
	// cookie banners / consent
	"#onetrust-consent-sdk",
	".onetrust-pc-dark-filter",
	"#onetrust-banner-sdk",
	".cookie-banner",
	"#cookie-banner",
	".cc-banner",
	".cc-window",
	`div[class*="cookie"]`,
	`div[class*="consent"]`,
	`div[id*="cookie"]`,
	`div[id*="consent"]`,

	// ads
	`iframe[id*="google_ads"]`,
	`div[id*="google_ads"]`,
	".adsbygoogle",
	`div[class*="ad-container"]`,
	`div[class*="advertising"]`,

	// chat widgets
	"#intercom-container",
	".intercom-lightweight-app",
	"#hubspot-messages-iframe-container",
	".crisp-client",
	"#drift-widget-container",
	`iframe[title*="chat"]`,

	// share bars
	".sharethis-inline-share-buttons",
	".addthis_inline_share_toolbox",

	// popups / newsletters
	`div[class*="popup"]`,
	`div[class*="modal"]`,
	`div[id*="newsletter"]`,
	`div[class*="newsletter"]`,
}

// overlaySelectors are removed from the DOM by OverlayRemoval.
var overlaySelectors = []string{ //nolint: gochecknoglobals
	`[aria-modal="true"]`,
	`[role="dialog"]`,
	`[role="alertdialog"]`,
	".modal",
	".modal-backdrop",
	"#onetrust-consent-sdk",
	"#CybotCookiebotDialog",
	"#usercentrics-root",
	"#didomi-host",
	".fc-consent-root",
	".qc-cmp2-container",
}

// SuppressionCSS returns the stylesheet injected by StaticSuppression.
func SuppressionCSS() string {
	var b strings.Builder
	b.WriteString(strings.Join(blockedSelectors, ",\n"))
	b.WriteString(" { display: none !important; opacity: 0 !important; pointer-events: none !important; }\n")
	b.WriteString("body::-webkit-scrollbar { display: none; }\n")

	return b.String()
}

// StaticSuppression hides known clutter with a single stylesheet. Hidden
// elements stay in the DOM, so it reports no removals.
type StaticSuppression struct{}

// Name implements Heuristic.
func (StaticSuppression) Name() string { return "static-suppression" }

// Apply implements Heuristic.
func (StaticSuppression) Apply(ctx context.Context, s Scripter) (int, error) {
	if err := s.AddStyle(ctx, SuppressionCSS()); err != nil {
		return 0, fmt.Errorf("could not inject suppression style: %w", err)
	}

	return 0, nil
}

// removeSelectorsScript removes every element matching any selector of the
// JSON array %s and returns the count.
const removeSelectorsScript = `(() => {
	let removed = 0;
	for (const sel of %s) {
		let els;
		try { els = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of els) {
			if (el === document.documentElement || el === document.body || !el.isConnected) continue;
			el.remove();
			removed++;
		}
	}
	return removed;
})()`

// OverlayRemoval removes modal dialogs and consent roots from the DOM.
type OverlayRemoval struct{}

// Name implements Heuristic.
func (OverlayRemoval) Name() string { return "overlay-removal" }

// Apply implements Heuristic.
func (OverlayRemoval) Apply(ctx context.Context, s Scripter) (int, error) {
	var removed int
	if err := s.Evaluate(ctx, fmt.Sprintf(removeSelectorsScript, jsonStrings(overlaySelectors)), &removed); err != nil {
		return 0, fmt.Errorf("could not remove overlays: %w", err)
	}

	return removed, nil
}

func jsonStrings(values []string) string {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()

	return e.String()
}
