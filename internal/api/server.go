// Package api configures and exposes the HTTP server, routes, metrics and
// related middleware for the screenshot service.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screenshot/internal/api/handler/v1handler"
	"screenshot/internal/config"
	"screenshot/pkg/controller"
)

// Options holds configuration for the HTTP server and its dependencies.
// It is typically created from a config.Config via NewOptions.
// All durations are used to configure server timeouts, and zero values
// should be considered as using the defaults provided by net/http where applicable.
type Options struct {
	// HandlerOptions configures request parsing of the screenshot endpoints.
	HandlerOptions v1handler.Options

	// Addr is the TCP address the server listens on, e.g. ":3001".
	Addr string
	// ReadTimeout is the maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration
	// ReadHeaderTimeout is the amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration
	// RequestTimeout is the global timeout applied via http.TimeoutHandler for handling requests.
	RequestTimeout time.Duration
	// MaxHeaderBytes controls the maximum number of bytes the server
	// will read parsing the request header's keys and values, including the request line.
	MaxHeaderBytes int
	// MetricsPath is the HTTP path at which Prometheus metrics are served.
	MetricsPath string
	// PprofEnabled mounts the runtime profiler under /debug/pprof/.
	PprofEnabled bool
}

// NewOptions constructs an Options value from the provided application configuration.
// It maps HTTP server-related settings from config.Config to the Options used by the API server.
func NewOptions(cfg *config.Config) Options {
	return Options{
		HandlerOptions: v1handler.NewOptions(cfg),

		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
		MetricsPath:       cfg.HTTP.MetricsPath,
		PprofEnabled:      cfg.HTTP.PprofEnabled,
	}
}

type Deps struct {
	v1handler.Deps
}

// NewRouter wires the routes:
// - GET/POST /screenshot and POST / for captures
// - GET /healthz for liveness of the browser
// - Prometheus metrics endpoint (MetricsPath)
// - pprof endpoints for profiling when enabled
func NewRouter(deps Deps, opts Options) *mux.Router {
	h := v1handler.New(deps.Deps, opts.HandlerOptions)

	r := mux.NewRouter()
	r.HandleFunc("/screenshot", h.Screenshot).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/", h.Screenshot).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}
	if opts.PprofEnabled {
		r.PathPrefix(controller.PprofPrefix).Handler(controller.PprofMux())
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		v1handler.WriteError(w, http.StatusNotFound, "Not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		v1handler.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})

	return r
}

// timeoutBody is the error envelope sent when a request runs out of time.
const timeoutBody = `{"error":"Request timed out"}`

// jsonTimeoutWriter labels the body http.TimeoutHandler writes on timeout as
// JSON. Responses produced by the wrapped handler keep their own headers.
func jsonTimeoutWriter(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(timeoutHeaderWriter{ResponseWriter: w}, r)
	})
}

type timeoutHeaderWriter struct {
	http.ResponseWriter
}

func (w timeoutHeaderWriter) WriteHeader(code int) {
	if code == http.StatusServiceUnavailable && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(code)
}

// NewServer wires up and returns a configured *http.Server using the provided Options.
// It wraps the router with CORS and logging middlewares and applies a request timeout.
func NewServer(deps Deps, opts Options) *http.Server {
	// cors
	handler := controller.WithCORS(NewRouter(deps, opts))

	// logger
	handler = controller.WithLogger(handler)

	if opts.RequestTimeout > 0 {
		handler = jsonTimeoutWriter(http.TimeoutHandler(handler, opts.RequestTimeout, timeoutBody))
	}

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		MaxHeaderBytes:    opts.MaxHeaderBytes,
	}
}
