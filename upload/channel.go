// Package upload drives single large-file transfers to the video service and
// reduces their byte-level events into a progress view.
package upload

import (
	"context"

	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/video"
)

// Event is one notification from a transfer channel: Progress, Done or Failed.
type Event interface {
	event()
}

// Progress reports bytes handed to the transport so far.
type Progress struct {
	Sent  int64
	Total int64
}

// Done is the successful terminal event.
type Done struct {
	Record *video.Record
}

// Failed is the unsuccessful terminal event.
type Failed struct {
	Err error
}

func (Progress) event() {}
func (Done) event()     {}
func (Failed) event()   {}

// Metadata is sent alongside the file.
type Metadata struct {
	Title       string
	Description *string
}

// Channel opens one transfer.
//
// The returned stream carries zero or more Progress events with non-decreasing
// Sent, then exactly one Done or Failed, and is then closed.
type Channel interface {
	Open(ctx context.Context, src *filesystem.Upload, meta Metadata) <-chan Event
}
