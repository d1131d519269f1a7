package domain

// CaptureRequest describes a single screenshot to take. It is a value type and
// is never mutated once created.
type CaptureRequest struct {
	// URL is the absolute http(s) address of the page to render.
	URL string `json:"url"`
	// FullPage selects a capture of the whole scrollable page instead of the
	// visible viewport.
	FullPage bool `json:"fullPage"`
}
