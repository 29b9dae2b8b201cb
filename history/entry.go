package history

import (
	"fmt"
	"time"

	"github.com/reelcast/reelcast/video"
)

// Entry is the watch progress of one video.
type Entry struct {
	VideoID           string    `json:"video_id"`
	Title             string    `json:"title"`
	Position          float64   `json:"position"`
	Duration          float64   `json:"duration"`
	WatchedPercentage float64   `json:"watched_percentage"`
	WatchedAt         time.Time `json:"watched_at"`
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s : %.0f%%", e.Title, e.WatchedPercentage)
}

// Finished reports whether the entry crossed the completion threshold.
func (e *Entry) Finished(threshold float64) bool {
	return e.WatchedPercentage >= threshold
}

func newEntry(rec *video.Record, position, duration float64) *Entry {
	if duration <= 0 && rec.DurationSeconds != nil {
		duration = *rec.DurationSeconds
	}

	e := &Entry{
		VideoID:   rec.ID,
		Title:     rec.Title,
		Position:  position,
		Duration:  duration,
		WatchedAt: time.Now(),
	}
	if duration > 0 {
		e.WatchedPercentage = min(position/duration*100, 100)
	}
	return e
}
