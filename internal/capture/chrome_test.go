package capture_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screenshot/internal/capture"
	"screenshot/internal/cleaner"
	"screenshot/internal/config"
	"screenshot/internal/session"
	"screenshot/pkg/browser/chromedriver"
	"screenshot/pkg/browser/chromedriver/chromedrivertest"
	"screenshot/pkg/domain"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n") //nolint: gochecknoglobals

func TestCapture_InBrowser(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	opts := session.NewOptions(cfg)
	opts.Launch = chromedrivertest.LaunchOptions(t)
	pool := session.New(chromedriver.New(chromedriver.Options{}), opts)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	captureOpts := capture.NewOptions(cfg)
	captureOpts.NetworkIdleTimeout = time.Second
	captureOpts.SettleDelay = 10 * time.Millisecond
	orch, err := capture.New(pool, cleaner.New(cleaner.NewOptions(cfg)), captureOpts)
	require.NoError(t, err)

	url := chromedrivertest.DataURL(`<!doctype html><html><body>
<h1>hello</h1>
<div class="cookie-banner">we use cookies</div>
<div style="height: 4000px"></div>
</body></html>`)

	for _, fullPage := range []bool{false, true} {
		img, err := orch.Capture(t.Context(), domain.CaptureRequest{URL: url, FullPage: fullPage})
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(img, pngSignature))
	}
	require.Zero(t, pool.ActiveContexts())
}
