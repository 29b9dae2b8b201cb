// Package player launches external media players and exposes them as
// playback elements. mpv is driven over its JSON-IPC socket; IINA is launched
// through LaunchServices and can only play streams natively.
package player

import (
	"fmt"
	"strings"

	"github.com/reelcast/reelcast/playback"
)

const (
	MPVName  = "mpv"
	IINAName = "iina"
)

// Available lists the players that can be configured.
var Available = []string{MPVName, IINAName}

// Element is a player process that renders one stream at a time.
type Element interface {
	playback.MediaElement

	// Name is the configured player name.
	Name() string

	// Wait returns a channel that is closed when the player process exits.
	Wait() <-chan struct{}

	// Close terminates the player and releases its resources.
	Close() error
}

// New returns the element for the configured player name.
func New(name, title string) (Element, error) {
	switch strings.ToLower(name) {
	case MPVName:
		return NewMPV(title), nil
	case IINAName:
		return NewIINA(title), nil
	default:
		return nil, fmt.Errorf("unknown player %q, available: %s", name, strings.Join(Available, ", "))
	}
}
