package capture

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screenshot/pkg/browser"
	"screenshot/pkg/browser/chromedriver/chromedrivertest"
)

func TestScrollScript_InBrowser(t *testing.T) {
	tests := map[string]struct {
		body string
		want int
	}{
		// the first step already passes the scroll height
		"short page": {`<p>short</p>`, 200},
		// capped at two viewports of 800px
		"long page": {`<div style="height: 10000px">long</div>`, 1600},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			page := chromedrivertest.NewPage(t, browser.ContextOptions{
				ViewportWidth:     1280,
				ViewportHeight:    800,
				DeviceScaleFactor: 1,
			})
			html := `<!doctype html><html><body style="margin: 0">` + tt.body + `</body></html>`
			require.NoError(t, page.Navigate(t.Context(), chromedrivertest.DataURL(html), 10*time.Second))

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			var scrolled int
			require.NoError(t, page.Evaluate(ctx, fmt.Sprintf(scrollScript, 200, 2, 10), &scrolled))
			require.Equal(t, tt.want, scrolled)

			require.NoError(t, page.Evaluate(ctx, scrollTopScript, nil))
			var y float64
			require.NoError(t, page.Evaluate(ctx, `window.scrollY`, &y))
			require.Zero(t, y)
		})
	}
}

func TestScrollScript_Arguments(t *testing.T) {
	script := fmt.Sprintf(scrollScript, 200, 2, 50)

	require.Contains(t, script, "const step = 200;")
	require.Contains(t, script, "window.innerHeight * 2;")
	require.Contains(t, script, "}, 50);")
}
