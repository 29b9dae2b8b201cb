// Package hls is an adaptive-bitrate engine that drives an mpv element from
// an HLS master manifest.
package hls

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/network"
	"github.com/reelcast/reelcast/playback"
)

// ErrDestroyed is returned by every call made after Destroy.
var ErrDestroyed = errors.New("hls engine destroyed")

// manifestRetryDelay spaces manifest refetches requested through StartLoad.
var manifestRetryDelay = time.Second

// reloadDelay spaces reloads of a parsed source requested through StartLoad.
// Calls arriving while a reload is pending join it.
var reloadDelay = time.Second

// Controller is an element the engine can drive directly.
type Controller interface {
	playback.MediaElement
	Launch(ctx context.Context) error
	Load(target string, start float64) error
	Command(args ...any) (any, error)
	Request(args ...any) error
	Set(property string, value any) error
	Observe(fn func(name string, data any)) (cancel func())
}

// Factory builds engines for controllable elements.
type Factory struct {
	Client *http.Client
}

// Supported reports whether el exposes the controls the engine needs.
func (f Factory) Supported(el playback.MediaElement) bool {
	_, ok := el.(Controller)
	return ok
}

func (f Factory) New(cfg playback.EngineConfig) (playback.Engine, error) {
	return New(cfg, f.Client), nil
}

// Engine implements playback.Engine.
type Engine struct {
	cfg    playback.EngineConfig
	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	source    string
	media     Controller
	unobserve func()
	levels    []playback.Level
	parsed    bool
	fetching  bool
	reloading bool
	launched  bool
	loaded    bool
	pinned    int
	current   int
	startAt   float64
	destroyed bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(playback.Event)
}

// New creates an engine; client defaults to the shared network client.
func New(cfg playback.EngineConfig, client *http.Client) *Engine {
	if client == nil {
		client = network.Client
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:     cfg,
		client:  client,
		ctx:     ctx,
		cancel:  cancel,
		pinned:  playback.AutoLevel,
		current: playback.AutoLevel,
		startAt: cfg.StartPosition,
		subs:    make(map[int]func(playback.Event)),
	}
}

func (e *Engine) Subscribe(fn func(playback.Event)) (cancel func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

// LoadSource starts fetching the manifest at url.
func (e *Engine) LoadSource(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}
	e.source = url
	e.parsed = false
	e.levels = nil
	e.fetchLocked(0)
	return nil
}

// AttachMedia binds the engine to el and launches it.
func (e *Engine) AttachMedia(el playback.MediaElement) error {
	media, ok := el.(Controller)
	if !ok {
		return errors.New("hls: element cannot be driven by the engine")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}
	if e.unobserve != nil {
		e.unobserve()
	}
	e.media = media
	e.launched = false
	e.loaded = false
	e.unobserve = media.Observe(e.onMedia)

	go e.launch(media)
	return nil
}

// StartLoad refetches the manifest when it never arrived, otherwise reloads
// the current target from position.
func (e *Engine) StartLoad(position float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}

	e.startAt = position
	if !e.parsed {
		e.fetchLocked(manifestRetryDelay)
		return nil
	}
	if e.launched {
		e.reloadLocked()
	}
	return nil
}

// RecoverMediaError falls back to software decoding and reloads in place.
func (e *Engine) RecoverMediaError() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}
	if e.media == nil || !e.launched {
		return nil
	}

	if err := e.media.Set("hwdec", "no"); err != nil {
		return err
	}
	if !e.parsed {
		return nil
	}
	return e.loadLocked(e.media.Position())
}

// SetLevel pins index, or returns to the master manifest with AutoLevel.
func (e *Engine) SetLevel(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}
	if index == e.pinned {
		return nil
	}

	e.pinned = index
	if !e.loaded {
		return nil
	}
	return e.loadLocked(e.media.Position())
}

// Levels returns the parsed levels.
func (e *Engine) Levels() []playback.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]playback.Level(nil), e.levels...)
}

// Destroy stops loading and fetching and drops every subscriber.
// The element itself stays open; it belongs to the caller.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	e.cancel()

	if e.unobserve != nil {
		e.unobserve()
		e.unobserve = nil
	}
	media, loaded := e.media, e.loaded
	e.media = nil
	e.mu.Unlock()

	e.subMu.Lock()
	e.subs = make(map[int]func(playback.Event))
	e.subMu.Unlock()

	if media != nil && loaded {
		if _, err := media.Command("stop"); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emit(ev playback.Event) {
	e.subMu.Lock()
	fns := make([]func(playback.Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *Engine) fetchLocked(delay time.Duration) {
	if e.fetching || e.source == "" {
		return
	}
	e.fetching = true
	go e.fetch(e.source, delay)
}

func (e *Engine) fetch(source string, delay time.Duration) {
	if delay > 0 {
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	levels, err := fetchLevels(e.ctx, e.client, source)

	e.mu.Lock()
	e.fetching = false
	if e.destroyed || source != e.source {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.mu.Unlock()
		detail := "manifestParsingError: " + err.Error()
		var lerr *loadError
		if errors.As(err, &lerr) {
			detail = "manifestLoadError: " + err.Error()
		}
		e.emit(playback.Fault{Kind: playback.NetworkFault, Fatal: true, Detail: detail})
		return
	}

	e.levels = levels
	e.parsed = true
	loadErr := e.maybeLoadLocked()
	e.mu.Unlock()

	log.WithFields(log.Fields{"source": source, "levels": len(levels)}).Debug("manifest parsed")
	e.emit(playback.ManifestParsed{Levels: levels})
	if loadErr != nil {
		e.emit(playback.Fault{Kind: playback.NetworkFault, Fatal: true, Detail: "levelLoadError: " + loadErr.Error()})
	}
}

func (e *Engine) launch(media Controller) {
	err := media.Launch(e.ctx)
	if err == nil {
		err = e.tune(media)
	}

	e.mu.Lock()
	if e.destroyed || e.media != media {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.mu.Unlock()
		e.emit(playback.Fault{Kind: playback.OtherFault, Fatal: true, Detail: "mediaAttachError: " + err.Error()})
		return
	}

	e.launched = true
	loadErr := e.maybeLoadLocked()
	e.mu.Unlock()

	if loadErr != nil {
		e.emit(playback.Fault{Kind: playback.NetworkFault, Fatal: true, Detail: "levelLoadError: " + loadErr.Error()})
	}
}

// tune applies the engine configuration to the element.
func (e *Engine) tune(media Controller) error {
	multiple := "0"
	if e.cfg.ParallelFetch {
		multiple = "1"
	}
	if err := media.Set("demuxer-lavf-o", "http_multiple="+multiple); err != nil {
		return err
	}

	if e.cfg.LowLatency {
		if _, err := media.Command("apply-profile", "low-latency"); err != nil {
			return err
		}
	}

	// warnings surface as non-fatal faults
	if err := media.Request("request_log_messages", "warn"); err != nil {
		log.Debugf("log messages unavailable: %s", err)
	}
	return nil
}

func (e *Engine) reloadLocked() {
	if e.reloading {
		return
	}
	e.reloading = true
	go e.reload(e.media)
}

func (e *Engine) reload(media Controller) {
	select {
	case <-e.ctx.Done():
		return
	case <-time.After(reloadDelay):
	}

	e.mu.Lock()
	e.reloading = false
	if e.destroyed || e.media != media || !e.launched {
		e.mu.Unlock()
		return
	}
	err := e.loadLocked(e.startAt)
	e.mu.Unlock()

	if err != nil {
		e.emit(playback.Fault{Kind: playback.NetworkFault, Fatal: true, Detail: "levelLoadError: " + err.Error()})
	}
}

func (e *Engine) maybeLoadLocked() error {
	if !e.parsed || !e.launched || e.loaded {
		return nil
	}
	return e.loadLocked(e.startAt)
}

func (e *Engine) loadLocked(position float64) error {
	if err := e.media.Set("demuxer-max-back-bytes", strconv.FormatInt(e.backBufferBytes(), 10)); err != nil {
		return err
	}

	target := e.source
	if e.pinned >= 0 && e.pinned < len(e.levels) {
		target = e.levels[e.pinned].URI
	}

	if err := e.media.Load(target, position); err != nil {
		return err
	}
	e.loaded = true
	return nil
}

// backBufferBytes sizes the back buffer for the configured duration at the
// highest known bitrate.
func (e *Engine) backBufferBytes() int64 {
	bitrate := 0
	for _, l := range e.levels {
		bitrate = max(bitrate, l.Bitrate)
	}
	if bitrate == 0 {
		bitrate = 8_000_000
	}
	return int64(e.cfg.BackBuffer.Seconds() * float64(bitrate) / 8)
}

// onMedia runs on the element's event goroutine.
func (e *Engine) onMedia(name string, data any) {
	switch name {
	case "video-params":
		if ev, ok := e.levelFor(data); ok {
			e.emit(ev)
		}
	case "end-file":
		event, _ := data.(map[string]any)
		if event["reason"] != "error" {
			return
		}
		detail, _ := event["file_error"].(string)
		e.emit(playback.Fault{Kind: classify(detail), Fatal: true, Detail: detail})
	case "log-message":
		event, _ := data.(map[string]any)
		text, _ := event["text"].(string)
		prefix, _ := event["prefix"].(string)
		e.emit(playback.Fault{Kind: classify(prefix + " " + text), Fatal: false, Detail: strings.TrimSpace(text)})
	}
}

func (e *Engine) levelFor(data any) (playback.LevelSwitched, bool) {
	params, ok := data.(map[string]any)
	if !ok {
		return playback.LevelSwitched{}, false
	}
	h, _ := params["h"].(float64)

	e.mu.Lock()
	defer e.mu.Unlock()

	index := e.pinned
	if index < 0 {
		for _, l := range e.levels {
			if l.Height == int(h) {
				index = l.Index
				break
			}
		}
	}
	if index < 0 || index == e.current {
		return playback.LevelSwitched{}, false
	}

	e.current = index
	return playback.LevelSwitched{Level: index}, true
}

var (
	networkHints = []string{"loading failed", "http", "tcp", "connection", "timed out", "network", "403", "404", "refused"}
	mediaHints   = []string{"unrecognized file format", "no audio or video", "demux", "decod", "codec", "invalid data"}
)

// classify sorts an mpv error text into a fault kind.
func classify(text string) playback.FaultKind {
	text = strings.ToLower(text)
	for _, hint := range networkHints {
		if strings.Contains(text, hint) {
			return playback.NetworkFault
		}
	}
	for _, hint := range mediaHints {
		if strings.Contains(text, hint) {
			return playback.MediaFault
		}
	}
	return playback.OtherFault
}
