package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the application configuration structure.
// It contains settings for the environment, HTTP server, browser, capture
// pipeline, limiter, result cache and graceful shutdown behavior.
type Config struct {
	// Environment specifies the current running environment (development, production, etc.)
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`

	// HTTP contains all HTTP server related configurations
	HTTP struct {
		// Addr is the address and port the HTTP server will listen on
		Addr string `env:"HTTP_ADDR" env-default:":3001" yaml:"addr"`
		// ReadTimeout is the maximum duration for reading the entire request, including the body
		ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"1m" yaml:"readTimeout"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"2m" yaml:"writeTimeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled
		IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		// RequestTimeout is the maximum time allowed for processing a single request,
		// including the time spent queued for a capture slot
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"90s" yaml:"requestTimeout"`
		// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
		MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" env-default:"0" yaml:"maxHeaderBytes"`
		// MetricsPath defines the URL path where metrics are exposed
		MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
		// PprofEnabled mounts the runtime profiler under /debug/pprof
		PprofEnabled bool `env:"HTTP_PPROF_ENABLED" env-default:"false" yaml:"pprofEnabled"`
	} `yaml:"http"`

	// Browser contains the headless browser launch and context profile settings
	Browser struct {
		// ExecPath is the Chrome/Chromium binary; empty means auto-detect
		ExecPath string `env:"BROWSER_EXEC_PATH" env-default:"" yaml:"execPath"`
		// Headless runs the browser without a window
		Headless bool `env:"BROWSER_HEADLESS" env-default:"true" yaml:"headless"`
		// NoSandbox disables the browser sandbox, required in most containers
		NoSandbox bool `env:"BROWSER_NO_SANDBOX" env-default:"true" yaml:"noSandbox"`
		// ViewportWidth is the page viewport width in CSS pixels
		ViewportWidth int `env:"BROWSER_VIEWPORT_WIDTH" env-default:"1920" yaml:"viewportWidth"`
		// ViewportHeight is the page viewport height in CSS pixels
		ViewportHeight int `env:"BROWSER_VIEWPORT_HEIGHT" env-default:"1080" yaml:"viewportHeight"`
		// DeviceScaleFactor is the device pixel ratio
		DeviceScaleFactor float64 `env:"BROWSER_DEVICE_SCALE_FACTOR" env-default:"1" yaml:"deviceScaleFactor"`
		// UserAgent is sent by every browsing context
		UserAgent string `env:"BROWSER_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36" yaml:"userAgent"` //nolint: lll
		// AcceptLanguage is the Accept-Language header of every browsing context
		AcceptLanguage string `env:"BROWSER_ACCEPT_LANGUAGE" env-default:"en-US,en;q=0.9" yaml:"acceptLanguage"`
		// Accept is the Accept header of every browsing context
		Accept string `env:"BROWSER_ACCEPT" env-default:"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8" yaml:"accept"` //nolint: lll
		// MaxContexts bounds open browsing contexts; 0 disables the bound
		MaxContexts int `env:"BROWSER_MAX_CONTEXTS" env-default:"10" yaml:"maxContexts"`
	} `yaml:"browser"`

	// Capture contains page-load stabilization and request filtering settings
	Capture struct {
		// NavigationTimeout bounds navigation up to DOMContentLoaded
		NavigationTimeout time.Duration `env:"CAPTURE_NAVIGATION_TIMEOUT" env-default:"25s" yaml:"navigationTimeout"`
		// NetworkIdleTimeout bounds the optional wait for network idle
		NetworkIdleTimeout time.Duration `env:"CAPTURE_NETWORK_IDLE_TIMEOUT" env-default:"4s" yaml:"networkIdleTimeout"`
		// ScrollStep is the distance in pixels of each auto-scroll tick
		ScrollStep int `env:"CAPTURE_SCROLL_STEP" env-default:"200" yaml:"scrollStep"`
		// ScrollInterval is the delay between auto-scroll ticks
		ScrollInterval time.Duration `env:"CAPTURE_SCROLL_INTERVAL" env-default:"50ms" yaml:"scrollInterval"`
		// ScrollMaxViewports caps the scrolled distance in viewport heights
		ScrollMaxViewports int `env:"CAPTURE_SCROLL_MAX_VIEWPORTS" env-default:"2" yaml:"scrollMaxViewports"`
		// ScrollTimeout bounds the whole auto-scroll
		ScrollTimeout time.Duration `env:"CAPTURE_SCROLL_TIMEOUT" env-default:"10s" yaml:"scrollTimeout"`
		// SettleDelay is waited after scrolling back to the top
		SettleDelay time.Duration `env:"CAPTURE_SETTLE_DELAY" env-default:"1s" yaml:"settleDelay"`
		// DefaultFullPage is used when a request does not say
		DefaultFullPage bool `env:"CAPTURE_DEFAULT_FULL_PAGE" env-default:"false" yaml:"defaultFullPage"`
		// BlockedResourceTypes are aborted by the request filter
		BlockedResourceTypes []string `env:"CAPTURE_BLOCKED_RESOURCE_TYPES" env-default:"media,websocket,manifest,other" yaml:"blockedResourceTypes"` //nolint: lll
		// TrackerPattern is a regular expression of tracker URLs to abort
		TrackerPattern string `env:"CAPTURE_TRACKER_PATTERN" env-default:"google-analytics|doubleclick|googletagmanager|facebook|twitter|linkedin" yaml:"trackerPattern"` //nolint: lll
	} `yaml:"capture"`

	// Cleaner contains the content cleaning heuristic settings
	Cleaner struct {
		// BottomFraction is the viewport fraction below which fixed elements are removed
		BottomFraction float64 `env:"CLEANER_BOTTOM_FRACTION" env-default:"0.75" yaml:"bottomFraction"`
		// ZIndexThreshold is the z-index above which full-viewport fixed elements are removed
		ZIndexThreshold int `env:"CLEANER_Z_INDEX_THRESHOLD" env-default:"1000" yaml:"zIndexThreshold"`
	} `yaml:"cleaner"`

	// Limiter contains the capture admission settings
	Limiter struct {
		// MaxConcurrent is the number of captures allowed to run at once
		MaxConcurrent int `env:"LIMITER_MAX_CONCURRENT" env-default:"5" yaml:"maxConcurrent"`
	} `yaml:"limiter"`

	// Cache contains the result cache settings
	Cache struct {
		// Dir is the directory holding cached screenshots
		Dir string `env:"CACHE_DIR" env-default:"cache" yaml:"dir"`
		// TTL is how long a cached screenshot is served
		TTL time.Duration `env:"CACHE_TTL" env-default:"1h" yaml:"ttl"`
	} `yaml:"cache"`

	// GracefulShutdownTimeout is the maximum duration to wait for ongoing requests to complete during shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load receives the path for yaml config file and returns a filled Config struct.
// An empty path reads the configuration from the environment only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	var err error
	if configPath == "" {
		err = cleanenv.ReadEnv(&cfg)
	} else {
		err = cleanenv.ReadConfig(configPath, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}
