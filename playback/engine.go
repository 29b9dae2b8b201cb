package playback

import (
	"context"
	"fmt"
	"time"
)

// Signal is a notification raised by a media element.
type Signal int

const (
	// SignalWaiting means playback stalled for data.
	SignalWaiting Signal = iota
	// SignalPlaying means playback resumed.
	SignalPlaying
	// SignalLoadedMetadata means the element knows the stream's duration and dimensions.
	SignalLoadedMetadata
	// SignalError means the element failed on its own, without an engine.
	SignalError
)

func (s Signal) String() string {
	switch s {
	case SignalWaiting:
		return "waiting"
	case SignalPlaying:
		return "playing"
	case SignalLoadedMetadata:
		return "loadedmetadata"
	case SignalError:
		return "error"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// MediaElement is the surface a stream is rendered into.
type MediaElement interface {
	// CanPlayType reports whether the element natively understands mediaType.
	CanPlayType(mediaType string) bool
	// SetSource points the element at url directly, without an engine.
	SetSource(ctx context.Context, url string) error
	// Play starts or resumes playback.
	Play() error
	// OnSignal registers fn and returns a func that unregisters it.
	OnSignal(fn func(Signal)) (cancel func())
	// Position is the last known playback position in seconds.
	Position() float64
}

// Level is one quality rendition announced by the manifest.
type Level struct {
	Index   int
	Name    string
	Width   int
	Height  int
	Bitrate int
	URI     string
}

func (l Level) String() string {
	if l.Height > 0 {
		return fmt.Sprintf("%dp (%dkbps)", l.Height, l.Bitrate/1000)
	}
	return l.Name
}

// Event is something an engine reports: ManifestParsed, LevelSwitched or Fault.
type Event interface {
	engineEvent()
}

// ManifestParsed carries the level inventory.
type ManifestParsed struct {
	Levels []Level
}

// LevelSwitched reports the level now playing, whoever chose it.
type LevelSwitched struct {
	Level int
}

// FaultKind classifies an engine fault.
type FaultKind int

const (
	NetworkFault FaultKind = iota
	MediaFault
	OtherFault
)

func (k FaultKind) String() string {
	switch k {
	case NetworkFault:
		return "network"
	case MediaFault:
		return "media"
	default:
		return "other"
	}
}

// Fault is an engine error; only fatal ones require action.
type Fault struct {
	Kind   FaultKind
	Fatal  bool
	Detail string
}

func (f Fault) Error() string {
	severity := "non-fatal"
	if f.Fatal {
		severity = "fatal"
	}
	return fmt.Sprintf("%s %s fault: %s", severity, f.Kind, f.Detail)
}

func (ManifestParsed) engineEvent() {}
func (LevelSwitched) engineEvent()  {}
func (Fault) engineEvent()          {}

// EngineConfig tunes an adaptive engine.
type EngineConfig struct {
	ParallelFetch bool
	LowLatency    bool
	BackBuffer    time.Duration
	// StartPosition is where the first load begins, in seconds.
	StartPosition float64
}

// DefaultEngineConfig is used when a session is created without one.
var DefaultEngineConfig = EngineConfig{
	ParallelFetch: true,
	LowLatency:    false,
	BackBuffer:    90 * time.Second,
}

// Engine is an adaptive-bitrate engine bound to one media element.
//
// Events are delivered from the engine's own goroutines, never from inside
// one of its method calls.
type Engine interface {
	LoadSource(url string) error
	AttachMedia(el MediaElement) error
	// StartLoad (re)starts fetching from position seconds.
	StartLoad(position float64) error
	// RecoverMediaError resets the decode pipeline in place.
	RecoverMediaError() error
	// SetLevel pins a level; -1 hands the choice back to the engine.
	SetLevel(index int) error
	Subscribe(fn func(Event)) (cancel func())
	// Destroy stops all activity and drops every subscriber.
	Destroy() error
}

// EngineFactory builds engines for the elements it supports.
type EngineFactory interface {
	Supported(el MediaElement) bool
	New(cfg EngineConfig) (Engine, error)
}
