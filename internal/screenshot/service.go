// Package screenshot is the request core of the service: it validates a
// capture request, answers it from the result cache when possible and
// otherwise runs a capture under the concurrency limiter and stores the result.
package screenshot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"screenshot/internal/capture"
	"screenshot/pkg/cache"
	"screenshot/pkg/domain"
	"screenshot/pkg/logger"
	"screenshot/pkg/serrors"
)

// Runner admits tasks under a concurrency bound.
type Runner interface {
	Run(ctx context.Context, task func(ctx context.Context) error) error
}

// service is the concrete implementation of the Service interface.
type service struct {
	cache    cache.Cache
	limiter  Runner
	capturer capture.Capturer
}

// Screenshot implements Service. Two concurrent misses for the same page both
// capture it; the later write wins.
func (s service) Screenshot(ctx context.Context, req domain.CaptureRequest) (*Result, error) {
	URL, err := ValidateURL(req.URL)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrBadRequest, err, "Invalid url parameter")
	}
	req.URL = URL

	normalized, err := NormalizeURL(URL)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrBadRequest, err, "Invalid url parameter")
	}
	key := cache.Fingerprint(normalized, req.FullPage)
	ctx = logger.WithFields(ctx, zap.String("key", key.String()))

	if img, ok := s.cache.Get(ctx, key); ok {
		logger.Debug(ctx, "serving cached screenshot", zap.String("url", req.URL))

		return &Result{Image: img, CacheHit: true}, nil
	}

	var img []byte
	if err := s.limiter.Run(ctx, func(ctx context.Context) error {
		var err error
		img, err = s.capturer.Capture(ctx, req)

		return err //nolint: wrapcheck
	}); err != nil {
		return nil, fmt.Errorf("could not capture %s: %w", req.URL, err)
	}

	if err := s.cache.Set(ctx, key, img); err != nil {
		logger.Warn(ctx, "could not store screenshot in cache", zap.Error(err))
	}

	return &Result{Image: img}, nil
}

// New creates a Service reading and writing through c and capturing with
// capturer under limiter.
func New(c cache.Cache, limiter Runner, capturer capture.Capturer) Service {
	return &service{
		cache:    c,
		limiter:  limiter,
		capturer: capturer,
	}
}
