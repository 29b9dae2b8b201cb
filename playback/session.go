// Package playback binds a playable stream to a media element.
//
// An adaptive engine is used when the element supports one, native playback
// when the element understands HLS itself, and otherwise the session reports
// ErrUnsupported.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reelcast/reelcast/constant"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/video"
	"golang.org/x/exp/slices"
)

var (
	ErrUnsupported     = errors.New("HLS is not supported by this player")
	ErrStreamFailed    = errors.New("failed to load video stream")
	ErrPlaybackFailed  = errors.New("failed to play video")
	ErrNotPlayable     = errors.New("video is not ready for playback")
	ErrLevelOutOfRange = errors.New("quality level out of range")
)

// AutoLevel lets the engine pick the level.
const AutoLevel = -1

// Mode is how the session is currently playing.
type Mode int

const (
	ModeDetached Mode = iota
	ModeAdaptive
	ModeNative
	ModeUnsupported
	ModeFailed
)

func (m Mode) String() string {
	switch m {
	case ModeAdaptive:
		return "adaptive"
	case ModeNative:
		return "native"
	case ModeUnsupported:
		return "unsupported"
	case ModeFailed:
		return "failed"
	default:
		return "detached"
	}
}

// Recovery is the action taken for a fault.
type Recovery int

const (
	Ignore Recovery = iota
	ResumeLoad
	RecoverMedia
	Teardown
)

// RecoveryFor maps a fault to its recovery. Non-fatal faults never change state.
func RecoveryFor(f Fault) Recovery {
	if !f.Fatal {
		return Ignore
	}

	switch f.Kind {
	case NetworkFault:
		return ResumeLoad
	case MediaFault:
		return RecoverMedia
	case OtherFault:
		return Teardown
	default:
		return Teardown
	}
}

// State is an immutable view of a session.
type State struct {
	Mode         Mode
	Levels       []Level
	CurrentLevel int
	Buffering    bool
	Position     float64
	Err          error
}

// ShowQualitySelector reports whether a quality choice can be offered.
func (s State) ShowQualitySelector() bool {
	return s.Mode == ModeAdaptive && len(s.Levels) > 0
}

// Session owns at most one engine for one element at a time.
// All engine and element callbacks are serialised under a single lock.
type Session struct {
	factory EngineFactory
	cfg     EngineConfig

	mu         sync.Mutex
	generation uint64
	engine     Engine
	element    MediaElement
	cancels    []func()

	mode      Mode
	levels    []Level
	current   int
	buffering bool
	position  float64
	err       error

	updates  chan struct{}
	terminal chan error
}

// Option configures a Session.
type Option func(*Session)

// WithEngineConfig overrides DefaultEngineConfig.
func WithEngineConfig(cfg EngineConfig) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// NewSession creates a detached session. factory may be nil, in which case
// only native playback is attempted.
func NewSession(factory EngineFactory, opts ...Option) *Session {
	s := &Session{
		factory:  factory,
		cfg:      DefaultEngineConfig,
		current:  AutoLevel,
		updates:  make(chan struct{}, 1),
		terminal: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachRecord attaches the stream of rec, refusing records that are not playable.
func (s *Session) AttachRecord(ctx context.Context, el MediaElement, rec *video.Record) error {
	if !rec.Playable() {
		return ErrNotPlayable
	}
	return s.Attach(ctx, el, rec.Stream())
}

// Attach binds streamURL to el, replacing any previous binding.
// A failing engine falls back to native playback; ErrUnsupported is terminal.
func (s *Session) Attach(ctx context.Context, el MediaElement, streamURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notify()

	s.teardownLocked()
	s.err = nil
	s.position = 0
	gen := s.generation
	s.element = el

	logger := log.WithFields(log.Fields{"stream": streamURL})

	if s.factory != nil && s.factory.Supported(el) {
		err := s.attachEngineLocked(gen, el, streamURL)
		if err == nil {
			logger.Info("attached adaptive engine")
			return nil
		}
		logger.Warnf("adaptive engine unavailable, falling back: %s", err)
		gen = s.generation
		s.element = el
	}

	if el.CanPlayType(constant.HLSMimeType) {
		s.cancels = append(s.cancels, el.OnSignal(guard(s, gen, s.onNativeSignalLocked)))
		if err := el.SetSource(ctx, streamURL); err != nil {
			s.teardownLocked()
			s.failLocked(ModeFailed, fmt.Errorf("%w: %w", ErrPlaybackFailed, err))
			return s.err
		}
		s.mode = ModeNative
		logger.Info("attached native playback")
		return nil
	}

	s.teardownLocked()
	s.failLocked(ModeUnsupported, ErrUnsupported)
	return ErrUnsupported
}

func (s *Session) attachEngineLocked(gen uint64, el MediaElement, streamURL string) error {
	engine, err := s.factory.New(s.cfg)
	if err != nil {
		return err
	}

	s.engine = engine
	s.cancels = append(s.cancels,
		engine.Subscribe(guard(s, gen, s.onEngineEventLocked)),
		el.OnSignal(guard(s, gen, s.onSignalLocked)),
	)

	if err := engine.LoadSource(streamURL); err != nil {
		s.teardownLocked()
		return err
	}
	if err := engine.AttachMedia(el); err != nil {
		s.teardownLocked()
		return err
	}

	s.mode = ModeAdaptive
	return nil
}

// guard wraps fn so it runs under the session lock and only while the
// binding that registered it is still current.
func guard[T any](s *Session, gen uint64, fn func(T)) func(T) {
	return func(v T) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return
		}
		fn(v)
		s.notify()
	}
}

func (s *Session) onEngineEventLocked(ev Event) {
	switch ev := ev.(type) {
	case ManifestParsed:
		s.levels = slices.Clone(ev.Levels)
		if err := s.element.Play(); err != nil {
			log.Debugf("autoplay blocked: %s", err)
		}
	case LevelSwitched:
		s.current = ev.Level
	case Fault:
		s.handleFaultLocked(ev)
	}
}

func (s *Session) handleFaultLocked(f Fault) {
	logger := log.WithFields(log.Fields{"kind": f.Kind.String(), "fatal": f.Fatal})

	switch RecoveryFor(f) {
	case Ignore:
		logger.Debugf("ignoring playback fault: %s", f.Detail)
	case ResumeLoad:
		s.capturePositionLocked()
		logger.Warnf("network fault, resuming load at %.1fs: %s", s.position, f.Detail)
		if err := s.engine.StartLoad(s.position); err != nil {
			s.streamFailedLocked(err)
		}
	case RecoverMedia:
		logger.Warnf("media fault, recovering decoder: %s", f.Detail)
		if err := s.engine.RecoverMediaError(); err != nil {
			s.streamFailedLocked(err)
		}
	case Teardown:
		logger.Errorf("fatal playback fault: %s", f.Detail)
		s.streamFailedLocked(f)
	}
}

func (s *Session) onSignalLocked(sig Signal) {
	switch sig {
	case SignalWaiting:
		s.buffering = true
	case SignalPlaying:
		s.buffering = false
	}
}

func (s *Session) onNativeSignalLocked(sig Signal) {
	switch sig {
	case SignalLoadedMetadata:
		if err := s.element.Play(); err != nil {
			log.Debugf("autoplay blocked: %s", err)
		}
	case SignalError:
		s.teardownLocked()
		s.failLocked(ModeFailed, ErrPlaybackFailed)
	default:
		s.onSignalLocked(sig)
	}
}

// SetQualityLevel pins level index, or hands the choice to the engine with AutoLevel.
// Without an engine it does nothing.
func (s *Session) SetQualityLevel(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	if index < AutoLevel || index >= len(s.levels) {
		return fmt.Errorf("%w: %d of %d", ErrLevelOutOfRange, index, len(s.levels))
	}

	if err := s.engine.SetLevel(index); err != nil {
		return err
	}
	s.current = index
	s.notify()
	return nil
}

// Levels returns the known quality levels; empty until the manifest is parsed.
func (s *Session) Levels() []Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.levels)
}

// CurrentLevel returns the level playing, or AutoLevel.
func (s *Session) CurrentLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) ShowQualitySelector() bool {
	return s.Snapshot().ShowQualitySelector()
}

// Buffering reports whether the latest element signal was a stall.
func (s *Session) Buffering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffering
}

// Position returns the last known playback position in seconds.
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturePositionLocked()
	return s.position
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturePositionLocked()
	return State{
		Mode:         s.mode,
		Levels:       slices.Clone(s.levels),
		CurrentLevel: s.current,
		Buffering:    s.buffering,
		Position:     s.position,
		Err:          s.err,
	}
}

// Updates signals that Snapshot changed. Notifications coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Terminal receives the error that ended the session: ErrUnsupported,
// ErrStreamFailed or ErrPlaybackFailed.
func (s *Session) Terminal() <-chan error {
	return s.terminal
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Detach unbinds the element and destroys the engine. No callback reaches the
// session once it returns. Calling it again does nothing.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.element == nil && s.engine == nil {
		return
	}
	s.teardownLocked()
	s.mode = ModeDetached
	s.notify()
}

// Bindings is the number of callbacks currently registered on the engine and element.
func (s *Session) Bindings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

func (s *Session) teardownLocked() {
	s.generation++
	s.capturePositionLocked()

	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil

	if s.engine != nil {
		if err := s.engine.Destroy(); err != nil {
			log.Warnf("destroy engine: %s", err)
		}
		s.engine = nil
	}

	s.element = nil
	s.levels = nil
	s.current = AutoLevel
	s.buffering = false
}

func (s *Session) streamFailedLocked(cause error) {
	s.teardownLocked()
	s.failLocked(ModeFailed, fmt.Errorf("%w: %w", ErrStreamFailed, cause))
}

func (s *Session) failLocked(mode Mode, err error) {
	s.mode = mode
	s.err = err
	select {
	case s.terminal <- err:
	default:
	}
}

func (s *Session) capturePositionLocked() {
	if s.element == nil {
		return
	}
	if p := s.element.Position(); p > 0 {
		s.position = p
	}
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
