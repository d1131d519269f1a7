package v1handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"screenshot/pkg/domain"
	"screenshot/pkg/serrors"
)

var errNoURL = errors.New("no url") //nolint: gochecknoglobals

// parseFlag reads a fullPage value given as text. Anything that is not a
// true spelling accepted by strconv.ParseBool disables it.
func parseFlag(s string) bool {
	v, err := strconv.ParseBool(s)

	return err == nil && v
}

// ParseQuery builds a capture request from GET query parameters.
func ParseQuery(r *http.Request, defaultFullPage bool) (domain.CaptureRequest, error) {
	q := r.URL.Query()
	req := domain.CaptureRequest{URL: q.Get("url"), FullPage: defaultFullPage}
	if req.URL == "" {
		return req, errNoURL
	}
	if q.Has("fullPage") {
		req.FullPage = parseFlag(q.Get("fullPage"))
	}

	return req, nil
}

// DecodeBody builds a capture request from a JSON body of the form
// {"url": string, "fullPage": bool|"true"|"false"}. Unknown fields are ignored.
func DecodeBody(body []byte, defaultFullPage bool) (domain.CaptureRequest, error) {
	req := domain.CaptureRequest{FullPage: defaultFullPage}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, errNoURL
	}

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "url":
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				if err != nil {
					return fmt.Errorf("url: %w", err)
				}
				req.URL = s
			case jx.Null:
				return d.Null() //nolint: wrapcheck
			default:
				return errors.New("url must be a string")
			}
		case "fullPage":
			switch d.Next() {
			case jx.Bool:
				b, err := d.Bool()
				if err != nil {
					return fmt.Errorf("fullPage: %w", err)
				}
				req.FullPage = b
			case jx.String:
				s, err := d.Str()
				if err != nil {
					return fmt.Errorf("fullPage: %w", err)
				}
				req.FullPage = parseFlag(s)
			case jx.Null:
				return d.Null() //nolint: wrapcheck
			default:
				return errors.New("fullPage must be a boolean")
			}
		default:
			return d.Skip() //nolint: wrapcheck
		}

		return nil
	}); err != nil {
		return req, serrors.Wrap(serrors.ErrBadRequest, err, errInvalidBody)
	}

	if req.URL == "" {
		return req, errNoURL
	}

	return req, nil
}

// Screenshot serves GET /screenshot, POST /screenshot and POST /. The image is
// returned as image/png; X-Cache tells whether it came from the cache.
func (h Handler) Screenshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		req domain.CaptureRequest
		err error
	)
	if r.Method == http.MethodGet {
		req, err = ParseQuery(r, h.options.DefaultFullPage)
	} else {
		var body []byte
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, h.options.MaxBodyBytes))
		if err != nil {
			WriteError(w, http.StatusBadRequest, errInvalidBody, err.Error())

			return
		}
		req, err = DecodeBody(body, h.options.DefaultFullPage)
	}
	if errors.Is(err, errNoURL) {
		WriteError(w, http.StatusBadRequest, errMissingURL, "")

		return
	}
	if err != nil {
		h.NewError(ctx, w, err)

		return
	}

	res, err := h.deps.Screenshots.Screenshot(ctx, req)
	if err != nil {
		h.NewError(ctx, w, err)

		return
	}

	cacheStatus := "MISS"
	if res.CacheHit {
		cacheStatus = "HIT"
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Image)))
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Image)
}
