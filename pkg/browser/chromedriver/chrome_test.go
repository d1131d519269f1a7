package chromedriver_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screenshot/pkg/browser"
	"screenshot/pkg/browser/chromedriver/chromedrivertest"
)

const automationScript = `(() => ({
	webdriver: navigator.webdriver === true,
	chromeRuntime: !!(window.chrome && window.chrome.runtime),
	plugins: navigator.plugins.length,
	userAgent: navigator.userAgent,
	width: window.innerWidth,
}))()`

type automationState struct {
	Webdriver     bool   `json:"webdriver"`
	ChromeRuntime bool   `json:"chromeRuntime"`
	Plugins       int    `json:"plugins"`
	UserAgent     string `json:"userAgent"`
	Width         int    `json:"width"`
}

func TestPage_HidesAutomation(t *testing.T) {
	page := chromedrivertest.NewPage(t, browser.ContextOptions{
		ViewportWidth:     1024,
		ViewportHeight:    768,
		DeviceScaleFactor: 1,
		UserAgent:         "screenshot-test/1.0",
	})
	ctx := t.Context()
	require.NoError(t, page.Navigate(ctx, chromedrivertest.DataURL(`<p>hi</p>`), 10*time.Second))

	var state automationState
	require.NoError(t, page.Evaluate(ctx, automationScript, &state))
	require.False(t, state.Webdriver)
	require.True(t, state.ChromeRuntime)
	require.Positive(t, state.Plugins)
	require.Equal(t, "screenshot-test/1.0", state.UserAgent)
	require.Equal(t, 1024, state.Width)
}

func TestPage_Screenshot(t *testing.T) {
	page := chromedrivertest.NewPage(t, browser.ContextOptions{
		ViewportWidth:     800,
		ViewportHeight:    600,
		DeviceScaleFactor: 1,
	})
	ctx := t.Context()
	require.NoError(t, page.Navigate(ctx, chromedrivertest.DataURL(`<h1 style="animation: spin 1s infinite">hi</h1>`), 10*time.Second))

	img, err := page.Screenshot(ctx, browser.ScreenshotOptions{DisableAnimations: true})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(img, []byte("\x89PNG\r\n\x1a\n")))
}
