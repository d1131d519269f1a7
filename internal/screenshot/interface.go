package screenshot

import (
	"context"

	"screenshot/pkg/domain"
)

// Result is a rendered screenshot.
type Result struct {
	// Image holds the PNG bytes.
	Image []byte
	// CacheHit tells whether Image came from the result cache.
	CacheHit bool
}

//go:generate mockgen -package mockscreenshot -source=interface.go -destination=mock/mockscreenshot.go *
type Service interface {
	// Screenshot validates req, serves it from the cache when possible and
	// otherwise captures the page once a capture slot is free.
	Screenshot(ctx context.Context, req domain.CaptureRequest) (*Result, error)
}
