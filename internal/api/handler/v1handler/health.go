package v1handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Health serves GET /healthz: 200 while the browser is running, 503 otherwise.
// The body reports the browser and admission queue state.
func (h Handler) Health(w http.ResponseWriter, _ *http.Request) {
	live := h.deps.Browser != nil && h.deps.Browser.Live()

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if live {
		e.Str("ok")
	} else {
		e.Str("unavailable")
	}
	e.FieldStart("browser")
	e.Bool(live)
	if h.deps.Browser != nil {
		e.FieldStart("contexts")
		e.Int(h.deps.Browser.ActiveContexts())
	}
	if h.deps.Limiter != nil {
		s := h.deps.Limiter.Stats()
		e.FieldStart("inFlight")
		e.Int(s.InFlight)
		e.FieldStart("waiting")
		e.Int(s.Waiting)
		e.FieldStart("maxConcurrent")
		e.Int(s.Max)
	}
	e.ObjEnd()

	status := http.StatusOK
	if !live {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
