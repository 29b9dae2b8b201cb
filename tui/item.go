package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/video"
)

// listItem implements the list.Item interface, wrapping domain values for terminal display.
type listItem struct {
	internal any
	marked   bool
}

func (t *listItem) getMark() string {
	return lipgloss.NewStyle().Bold(true).Foreground(style.AccentColor).Render(icon.Get(icon.Mark))
}

// Title retrieves the primary display text for the list item.
func (t *listItem) Title() (title string) {
	switch e := t.internal.(type) {
	case *video.Record:
		title = fmt.Sprintf("%s %s", icon.Get(icon.ForStatus(e.Status)), e.Title)
	case playback.Level:
		title = e.String()
	default:
		title = t.FilterValue()
	}

	title = strings.TrimSpace(title)
	if title != "" && t.marked {
		title = fmt.Sprintf("%s %s", title, t.getMark())
	}

	return
}

// Description retrieves the secondary metadata line for the list item.
func (t *listItem) Description() (description string) {
	switch e := t.internal.(type) {
	case *video.Record:
		parts := []string{style.Status(e.Status)}

		if e.OriginalSize > 0 {
			parts = append(parts, style.Faint(video.FormatFileSize(e.OriginalSize)))
		}
		if e.DurationSeconds != nil {
			parts = append(parts, style.Faint(video.FormatDuration(e.DurationSeconds)))
		}
		if !e.CreatedAt.IsZero() {
			parts = append(parts, style.Faint(video.TimeAgo(e.CreatedAt, time.Now())))
		}

		description = strings.Join(parts, " • ")
	case playback.Level:
		if e.Width > 0 {
			description = fmt.Sprintf("%dx%d", e.Width, e.Height)
		}
	}

	return
}

// FilterValue returns the string used for real-time list filtering and searching.
func (t *listItem) FilterValue() string {
	switch e := t.internal.(type) {
	case *video.Record:
		return e.Title + " " + e.OriginalFilename
	case playback.Level:
		return e.String()
	case string:
		return e
	default:
		return ""
	}
}
