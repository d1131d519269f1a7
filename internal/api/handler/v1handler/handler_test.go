package v1handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"screenshot/internal/api/handler/v1handler"
	"screenshot/internal/limiter"
	"screenshot/internal/screenshot"
	mockscreenshot "screenshot/internal/screenshot/mock"
	"screenshot/pkg/domain"
	"screenshot/pkg/serrors"
)

var png = []byte("\x89PNG\r\n\x1a\nimage") //nolint: gochecknoglobals

func newTestHandler(t *testing.T) (*mockscreenshot.MockService, http.HandlerFunc) {
	t.Helper()

	ctrl := gomock.NewController(t)
	svc := mockscreenshot.NewMockService(ctrl)
	h := v1handler.New(v1handler.Deps{Screenshots: svc}, v1handler.Options{})

	return svc, h.Screenshot
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestScreenshot_GET(t *testing.T) {
	svc, h := newTestHandler(t)
	svc.EXPECT().
		Screenshot(gomock.Any(), domain.CaptureRequest{URL: "https://example.com", FullPage: true}).
		Return(&screenshot.Result{Image: png}, nil)

	rec := serve(h, http.MethodGet, "/screenshot?url=https://example.com&fullPage=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	require.Equal(t, png, rec.Body.Bytes())
}

func TestScreenshot_GETDefaultsToViewport(t *testing.T) {
	svc, h := newTestHandler(t)
	svc.EXPECT().
		Screenshot(gomock.Any(), domain.CaptureRequest{URL: "https://example.com"}).
		Return(&screenshot.Result{Image: png, CacheHit: true}, nil).
		Times(2)

	rec := serve(h, http.MethodGet, "/screenshot?url=https://example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = serve(h, http.MethodGet, "/screenshot?url=https://example.com&fullPage=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScreenshot_POST(t *testing.T) {
	tests := map[string]struct {
		body string
		want domain.CaptureRequest
	}{
		"bool flag":    {`{"url":"https://example.com","fullPage":true}`, domain.CaptureRequest{URL: "https://example.com", FullPage: true}},
		"string flag":  {`{"fullPage":"true","url":"https://example.com"}`, domain.CaptureRequest{URL: "https://example.com", FullPage: true}},
		"false string": {`{"url":"https://example.com","fullPage":"false"}`, domain.CaptureRequest{URL: "https://example.com"}},
		"no flag":      {`{"url":"https://example.com","extra":{"a":[1,2]}}`, domain.CaptureRequest{URL: "https://example.com"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, h := newTestHandler(t)
			svc.EXPECT().Screenshot(gomock.Any(), tt.want).Return(&screenshot.Result{Image: png}, nil).Times(2)

			require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/screenshot", tt.body).Code)
			require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/", tt.body).Code)
		})
	}
}

func TestScreenshot_MissingURL(t *testing.T) {
	// no expectations: the service must not be called
	_, h := newTestHandler(t)

	for _, rec := range []*httptest.ResponseRecorder{
		serve(h, http.MethodGet, "/screenshot", ""),
		serve(h, http.MethodGet, "/screenshot?url=", ""),
		serve(h, http.MethodPost, "/screenshot", `{"fullPage":true}`),
		serve(h, http.MethodPost, "/screenshot", `{"url":null}`),
		serve(h, http.MethodPost, "/", ""),
	} {
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.JSONEq(t, `{"error":"Missing url parameter"}`, rec.Body.String())
	}
}

func TestScreenshot_InvalidBody(t *testing.T) {
	_, h := newTestHandler(t)

	for _, body := range []string{`{"url":`, `[1,2]`, `{"url":42}`, `{"url":"https://example.com","fullPage":{}}`} {
		rec := serve(h, http.MethodPost, "/screenshot", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.Contains(t, rec.Body.String(), `"error":"Invalid request body"`, body)
	}
}

func TestScreenshot_InvalidURL(t *testing.T) {
	svc, h := newTestHandler(t)
	svc.EXPECT().Screenshot(gomock.Any(), gomock.Any()).
		Return(nil, serrors.Wrap(serrors.ErrBadRequest, errors.New(`unsupported scheme "ftp"`), "Invalid url parameter"))

	rec := serve(h, http.MethodGet, "/screenshot?url=ftp://example.com", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Invalid url parameter","details":"unsupported scheme \"ftp\""}`, rec.Body.String())
}

func TestScreenshot_CaptureFailure(t *testing.T) {
	svc, h := newTestHandler(t)
	svc.EXPECT().Screenshot(gomock.Any(), gomock.Any()).
		Return(nil, serrors.Wrap(serrors.ErrTimeout, errors.New("wait timed out"), "page did not load within 25s"))

	rec := serve(h, http.MethodGet, "/screenshot?url=https://slow.example", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t,
		`{"error":"Failed to take screenshot","details":"page did not load within 25s: wait timed out"}`,
		rec.Body.String())
}

type browserState struct{ live bool }

func (b browserState) Live() bool          { return b.live }
func (b browserState) ActiveContexts() int { return 2 }

func TestHealth(t *testing.T) {
	l := limiter.New(limiter.Options{MaxConcurrent: 5})
	tok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer tok.Release()

	h := v1handler.New(v1handler.Deps{Browser: browserState{live: true}, Limiter: l}, v1handler.Options{})
	rec := serve(http.HandlerFunc(h.Health), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`{"status":"ok","browser":true,"contexts":2,"inFlight":1,"waiting":0,"maxConcurrent":5}`,
		rec.Body.String())

	h = v1handler.New(v1handler.Deps{Browser: browserState{}}, v1handler.Options{})
	rec = serve(http.HandlerFunc(h.Health), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"unavailable"`)
}
