package capture

import (
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"screenshot/pkg/browser"
)

// RequestFilter aborts requests that only slow a capture down or add tracking
// noise: blocked resource types and tracker URLs. Requests to the capture
// target's own site are exempt from the tracker pattern.
type RequestFilter struct {
	blocked  map[browser.ResourceType]struct{}
	trackers *regexp.Regexp
	site     string

	aborted atomic.Int64
}

// NewRequestFilter creates a filter for a capture of target. trackers may be nil.
func NewRequestFilter(blocked []browser.ResourceType, trackers *regexp.Regexp, target string) *RequestFilter {
	f := &RequestFilter{
		blocked:  make(map[browser.ResourceType]struct{}, len(blocked)),
		trackers: trackers,
		site:     siteOf(target),
	}
	for _, t := range blocked {
		f.blocked[t] = struct{}{}
	}

	return f
}

// Decide implements browser.RouteHandler.
func (f *RequestFilter) Decide(req browser.Request) browser.RouteDecision {
	if _, ok := f.blocked[req.ResourceType]; ok {
		f.aborted.Add(1)

		return browser.Abort
	}
	if f.trackers != nil && f.trackers.MatchString(req.URL) && !f.firstParty(req.URL) {
		f.aborted.Add(1)

		return browser.Abort
	}

	return browser.Continue
}

// Aborted returns how many requests were aborted so far.
func (f *RequestFilter) Aborted() int64 {
	return f.aborted.Load()
}

func (f *RequestFilter) firstParty(raw string) bool {
	if f.site == "" {
		return false
	}
	host := siteOf(raw)

	return host == f.site || strings.HasSuffix(host, "."+f.site)
}

// siteOf returns the lower-case host of raw without a leading "www.".
func siteOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
