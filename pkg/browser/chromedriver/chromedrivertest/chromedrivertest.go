// Package chromedrivertest starts a real headless Chrome for integration
// tests. Tests using it are skipped when no Chrome binary can be found or
// when running with -short.
package chromedrivertest

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"screenshot/pkg/browser"
	"screenshot/pkg/browser/chromedriver"
)

// ExecPathEnv overrides the Chrome binary used by integration tests.
const ExecPathEnv = "BROWSER_EXEC_PATH"

// execNames are looked up on PATH in order.
var execNames = []string{ //nolint: gochecknoglobals
	"headless-shell",
	"headless_shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// ExecPath returns the Chrome binary to test against, or "" when there is none.
func ExecPath() string {
	if p := os.Getenv(ExecPathEnv); p != "" {
		return p
	}
	for _, name := range execNames {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}

	return ""
}

// LaunchOptions returns headless launch options for the detected binary. It
// skips t when no binary is available.
func LaunchOptions(t *testing.T) browser.LaunchOptions {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	path := ExecPath()
	if path == "" {
		t.Skip("no Chrome binary found, set " + ExecPathEnv + " to run browser tests")
	}

	return browser.LaunchOptions{ExecPath: path, Headless: true, NoSandbox: true}
}

// Launch starts Chrome and closes it when the test ends.
func Launch(t *testing.T) browser.Browser {
	t.Helper()

	b, err := chromedriver.New(chromedriver.Options{}).Launch(t.Context(), LaunchOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	return b
}

// NewPage launches Chrome and returns the first page of a fresh browsing
// context with the given profile.
func NewPage(t *testing.T, opts browser.ContextOptions) browser.Page {
	t.Helper()

	bc, err := Launch(t).NewContext(t.Context(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bc.Close(context.Background()) })

	p, err := bc.NewPage(t.Context())
	require.NoError(t, err)

	return p
}

// DataURL returns a data: URL serving html.
func DataURL(html string) string {
	return "data:text/html;charset=utf-8," + url.PathEscape(html)
}
