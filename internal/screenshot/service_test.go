package screenshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mockcapture "screenshot/internal/capture/mock"
	"screenshot/internal/limiter"
	"screenshot/internal/screenshot"
	"screenshot/pkg/cache"
	"screenshot/pkg/cache/filecache"
	mockcache "screenshot/pkg/cache/mock"
	"screenshot/pkg/domain"
	"screenshot/pkg/serrors"
)

var png = []byte("\x89PNG\r\n\x1a\nimage") //nolint: gochecknoglobals

func newLimiter() *limiter.Limiter {
	return limiter.New(limiter.Options{MaxConcurrent: 5})
}

func TestService_MissCapturesAndStores(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mockcache.NewMockCache(ctrl)
	capturer := mockcapture.NewMockCapturer(ctrl)
	s := screenshot.New(c, newLimiter(), capturer)

	key := cache.Fingerprint("https://example.com/", true)
	req := domain.CaptureRequest{URL: "https://Example.com:443", FullPage: true}

	gomock.InOrder(
		c.EXPECT().Get(gomock.Any(), key).Return(nil, false),
		capturer.EXPECT().Capture(gomock.Any(), req).Return(png, nil),
		c.EXPECT().Set(gomock.Any(), key, png).Return(nil),
	)

	res, err := s.Screenshot(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, png, res.Image)
	require.False(t, res.CacheHit)
}

func TestService_HitSkipsCapture(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mockcache.NewMockCache(ctrl)
	capturer := mockcapture.NewMockCapturer(ctrl)
	s := screenshot.New(c, newLimiter(), capturer)

	c.EXPECT().Get(gomock.Any(), cache.Fingerprint("https://example.com/a?x=1&y=2", false)).Return(png, true)

	res, err := s.Screenshot(context.Background(), domain.CaptureRequest{URL: "https://example.com/a/?y=2&x=1"})
	require.NoError(t, err)
	require.True(t, res.CacheHit)
	require.Equal(t, png, res.Image)
}

func TestService_InvalidURLTouchesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := screenshot.New(mockcache.NewMockCache(ctrl), newLimiter(), mockcapture.NewMockCapturer(ctrl))

	for _, raw := range []string{"", "not a url", "ftp://example.com/"} {
		_, err := s.Screenshot(context.Background(), domain.CaptureRequest{URL: raw})
		require.ErrorIs(t, err, serrors.ErrBadRequest, raw)
		require.Equal(t, "Invalid url parameter", serrors.Message(err))
	}
}

func TestService_CaptureFailureIsNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mockcache.NewMockCache(ctrl)
	capturer := mockcapture.NewMockCapturer(ctrl)
	s := screenshot.New(c, newLimiter(), capturer)
	boom := serrors.With(serrors.ErrUnavailable, "could not load page")

	c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false)
	capturer.EXPECT().Capture(gomock.Any(), gomock.Any()).Return(nil, boom)

	_, err := s.Screenshot(context.Background(), domain.CaptureRequest{URL: "https://example.com/"})
	require.ErrorIs(t, err, serrors.ErrUnavailable)
}

func TestService_CacheWriteFailureIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mockcache.NewMockCache(ctrl)
	capturer := mockcapture.NewMockCapturer(ctrl)
	s := screenshot.New(c, newLimiter(), capturer)

	c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false)
	capturer.EXPECT().Capture(gomock.Any(), gomock.Any()).Return(png, nil)
	c.EXPECT().Set(gomock.Any(), gomock.Any(), png).Return(errors.New("disk full"))

	res, err := s.Screenshot(context.Background(), domain.CaptureRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, png, res.Image)
}

func TestService_FragmentIsPartOfTheKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mockcache.NewMockCache(ctrl)
	s := screenshot.New(c, newLimiter(), mockcapture.NewMockCapturer(ctrl))

	c.EXPECT().Get(gomock.Any(), cache.Fingerprint("https://example.com/#/settings", false)).Return(png, true)

	_, err := s.Screenshot(context.Background(), domain.CaptureRequest{URL: "https://example.com/#/settings"})
	require.NoError(t, err)
}

func TestService_RepeatedRequestsCaptureOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	capturer := mockcapture.NewMockCapturer(ctrl)
	fc, err := filecache.New(afero.NewMemMapFs(), filecache.Options{Dir: "cache", TTL: time.Hour})
	require.NoError(t, err)
	s := screenshot.New(fc, newLimiter(), capturer)
	req := domain.CaptureRequest{URL: "https://example.com/"}

	capturer.EXPECT().Capture(gomock.Any(), req).Return(png, nil).Times(1)

	first, err := s.Screenshot(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Screenshot(context.Background(), req)
	require.NoError(t, err)

	require.False(t, first.CacheHit)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Image, second.Image)
}
