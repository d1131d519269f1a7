// Package v1handler implements the HTTP endpoints of the screenshot service.
package v1handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"screenshot/internal/config"
	"screenshot/internal/limiter"
	"screenshot/internal/screenshot"
	"screenshot/pkg/logger"
	"screenshot/pkg/serrors"
)

const (
	// DefaultMaxBodyBytes caps POST bodies; a capture request is tiny.
	DefaultMaxBodyBytes = 64 << 10

	errMissingURL     = "Missing url parameter"
	errInvalidBody    = "Invalid request body"
	errCaptureFailure = "Failed to take screenshot"
)

// BrowserState reports the shared browser's state.
type BrowserState interface {
	Live() bool
	ActiveContexts() int
}

// LimiterState reports the admission queue's state.
type LimiterState interface {
	Stats() limiter.Stats
}

// Deps are the collaborators of the handler.
type Deps struct {
	Screenshots screenshot.Service
	Browser     BrowserState
	Limiter     LimiterState
}

// Options configure request parsing.
type Options struct {
	// DefaultFullPage is used when a request does not carry fullPage.
	DefaultFullPage bool
	// MaxBodyBytes caps POST bodies.
	MaxBodyBytes int64
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		DefaultFullPage: cfg.Capture.DefaultFullPage,
		MaxBodyBytes:    DefaultMaxBodyBytes,
	}
}

type Handler struct {
	deps    Deps
	options Options
}

func New(deps Deps, options Options) *Handler {
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Handler{deps: deps, options: options}
}

// WriteError writes the JSON error envelope {"error": msg, "details": details}.
// details is omitted when empty.
func WriteError(w http.ResponseWriter, status int, msg, details string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	if details != "" {
		e.FieldStart("details")
		e.Str(details)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// NewError writes the response for a failed screenshot request. Client
// mistakes keep their own message; every other failure is a capture failure.
func (h Handler) NewError(ctx context.Context, w http.ResponseWriter, err error) {
	status := serrors.HTTPStatus(err)
	if status == http.StatusBadRequest {
		logger.Debug(ctx, "rejected screenshot request", zap.Error(err))
		WriteError(w, status, serrors.Message(err), details(err))

		return
	}

	logger.Error(ctx, "screenshot request failed", zap.Error(err))
	WriteError(w, http.StatusInternalServerError, errCaptureFailure, err.Error())
}

// details returns the cause of a semantic error, or the error text.
func details(err error) string {
	var se *serrors.Error
	if errors.As(err, &se) && se.Cause() != nil {
		return se.Cause().Error()
	}

	return err.Error()
}
