// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// Reelcast is the canonical application identifier used for filesystem paths and CLI branding.
	Reelcast = "reelcast"

	// Version is the current application semantic version string.
	Version = "0.3.0"

	// UserAgent is the HTTP User-Agent string sent to the video service.
	UserAgent = Reelcast + "/" + Version
)

// Build metadata, overridden through -ldflags at release time.
var (
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
	Revision = "unknown"
)

// HLSMimeType is the media type of an HLS manifest, used for native playback probing.
const HLSMimeType = "application/vnd.apple.mpegurl"
