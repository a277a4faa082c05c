package render

import "regexp"

// MobileBreakpoint is the viewport width below which a device counts as mobile.
const MobileBreakpoint = 768

var mobileUserAgent = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// Capability reports what the client can display.
type Capability interface {
	SupportsEmbeddedViewer() bool
}

// Device is the capability detected from a request.
type Device struct {
	UserAgent     string `json:"-"`
	ViewportWidth int    `json:"viewportWidth,omitempty"`
	Mobile        bool   `json:"mobile"`
}

// DetectDevice classifies a client by user agent or viewport width. A zero
// width means unknown and is ignored.
func DetectDevice(userAgent string, viewportWidth int) Device {
	mobile := mobileUserAgent.MatchString(userAgent) || (viewportWidth > 0 && viewportWidth < MobileBreakpoint)
	return Device{UserAgent: userAgent, ViewportWidth: viewportWidth, Mobile: mobile}
}

// SupportsEmbeddedViewer is false on mobile, where inline PDF viewers are unreliable.
func (d Device) SupportsEmbeddedViewer() bool { return !d.Mobile }
