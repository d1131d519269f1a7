package cleaner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screenshot/internal/cleaner"
	"screenshot/pkg/browser"
	"screenshot/pkg/browser/chromedriver/chromedrivertest"
)

const clutteredPage = `<!doctype html>
<html><head><style>
body { margin: 0; height: 3000px; }
.bar { position: fixed; left: 0; width: 100%; height: 60px; }
</style></head><body>
<header id="top-bar" class="bar" style="top: 0">menu</header>
<main id="content">article</main>
<div class="cookie-banner">we use cookies</div>
<div id="bottom-bar" class="bar" style="bottom: 0">subscribe</div>
<div id="overlay" style="position: fixed; top: 0; left: 0; right: 0; bottom: 0; z-index: 2000"></div>
<div role="dialog" id="dialog">sign up</div>
</body></html>`

const pageStateScript = `(() => {
	const banner = document.querySelector('.cookie-banner');
	return {
		bannerVisible: !!banner && window.getComputedStyle(banner).display !== 'none',
		topBar: !!document.getElementById('top-bar'),
		bottomBar: !!document.getElementById('bottom-bar'),
		overlay: !!document.getElementById('overlay'),
		dialog: !!document.getElementById('dialog'),
		content: !!document.getElementById('content'),
		tagged: document.querySelectorAll('[data-screenshot-fixed]').length,
	};
})()`

type pageState struct {
	BannerVisible bool `json:"bannerVisible"`
	TopBar        bool `json:"topBar"`
	BottomBar     bool `json:"bottomBar"`
	Overlay       bool `json:"overlay"`
	Dialog        bool `json:"dialog"`
	Content       bool `json:"content"`
	Tagged        int  `json:"tagged"`
}

func TestClean_InBrowser(t *testing.T) {
	page := chromedrivertest.NewPage(t, browser.ContextOptions{
		ViewportWidth:     1280,
		ViewportHeight:    800,
		DeviceScaleFactor: 1,
	})
	ctx := t.Context()
	require.NoError(t, page.Navigate(ctx, chromedrivertest.DataURL(clutteredPage), 10*time.Second))

	c := cleaner.New(cleaner.Options{BottomFraction: 0.75, ZIndexThreshold: 1000})

	report := c.Clean(ctx, page)
	require.NoError(t, report.Err())
	// dialog, bottom bar and overlay
	require.Equal(t, 3, report.Removed())

	var state pageState
	require.NoError(t, page.Evaluate(ctx, pageStateScript, &state))
	require.False(t, state.BannerVisible)
	require.False(t, state.BottomBar)
	require.False(t, state.Overlay)
	require.False(t, state.Dialog)
	require.True(t, state.TopBar)
	require.True(t, state.Content)
	require.Zero(t, state.Tagged)

	// a second pass finds nothing left to remove
	report = c.Clean(ctx, page)
	require.NoError(t, report.Err())
	require.Zero(t, report.Removed())

	require.NoError(t, page.Evaluate(ctx, pageStateScript, &state))
	require.True(t, state.TopBar)
	require.Zero(t, state.Tagged)
}
