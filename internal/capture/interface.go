package capture

import (
	"context"

	"screenshot/pkg/domain"
)

//go:generate mockgen -package mockcapture -source=interface.go -destination=mock/mockcapture.go *
type Capturer interface {
	// Capture renders req.URL in a fresh browsing context and returns a PNG.
	Capture(ctx context.Context, req domain.CaptureRequest) ([]byte, error)
}
