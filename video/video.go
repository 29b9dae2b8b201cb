// Package video defines the record shape shared by the upload, reconciliation and playback components.
package video

import (
	"encoding/json"
	"time"

	"github.com/samber/mo"
)

// Status is the processing state of a video on the service.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// IsValid reports whether s is one of the four known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition can follow s.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// CanTransition reports whether the service may move a video from s to next.
// Progression is forward only and terminal states are final.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusReady || next == StatusFailed
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	default:
		return false
	}
}

// Resolution is one rendition derived by the transcoder.
type Resolution struct {
	Name        string `json:"name" jsonschema:"description=Rendition label such as 720p"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Bitrate     int    `json:"bitrate" jsonschema:"description=Target bitrate in kbps"`
	SegmentPath string `json:"segment_path"`
}

// Record is the full representation of a video returned by the service.
type Record struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      *string      `json:"description"`
	OriginalFilename string       `json:"original_filename"`
	OriginalSize     int64        `json:"original_size"`
	DurationSeconds  *float64     `json:"duration_seconds"`
	Status           Status       `json:"status" jsonschema:"enum=pending,enum=processing,enum=ready,enum=failed"`
	Resolutions      []Resolution `json:"resolutions"`
	StreamingURL     *string      `json:"streaming_url"`
	ThumbnailURL     *string      `json:"thumbnail_url"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Playable reports whether the record may be handed to a playback session.
func (r *Record) Playable() bool {
	return r != nil && r.Status == StatusReady && r.StreamingURL != nil && *r.StreamingURL != ""
}

// Stream returns the manifest URL, or "" when the record is not playable.
func (r *Record) Stream() string {
	if !r.Playable() {
		return ""
	}
	return *r.StreamingURL
}

// DescriptionOr returns the description or fallback when none is set.
func (r *Record) DescriptionOr(fallback string) string {
	if r.Description == nil || *r.Description == "" {
		return fallback
	}
	return *r.Description
}

// Duration returns the known duration, zero while processing.
func (r *Record) Duration() time.Duration {
	if r.DurationSeconds == nil {
		return 0
	}
	return time.Duration(*r.DurationSeconds * float64(time.Second))
}

// String returns the title for display.
func (r *Record) String() string {
	return r.Title
}

// StatusProjection is the lightweight status view used while polling.
type StatusProjection struct {
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Page is one slice of the library listing.
type Page struct {
	Videos []Record `json:"videos"`
	Total  int      `json:"total"`
}

// HasPending reports whether any record on the page can still change status.
func (p *Page) HasPending() bool {
	for i := range p.Videos {
		if !p.Videos[i].Status.IsTerminal() {
			return true
		}
	}
	return false
}

// Patch carries the editable metadata fields; absent fields are left untouched.
type Patch struct {
	Title       mo.Option[string]
	Description mo.Option[string]
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title.IsAbsent() && p.Description.IsAbsent()
}

// MarshalJSON encodes only the present fields.
func (p Patch) MarshalJSON() ([]byte, error) {
	fields := make(map[string]string, 2)
	if title, ok := p.Title.Get(); ok {
		fields["title"] = title
	}
	if description, ok := p.Description.Get(); ok {
		fields["description"] = description
	}
	return json.Marshal(fields)
}
