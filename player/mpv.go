package player

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/reelcast/reelcast/constant"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/playback"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

// MPV drives an mpv process over JSON-IPC. It implements playback.MediaElement
// and exposes raw commands and events for the adaptive engine.
type MPV struct {
	title      string
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{} // closed when mpv process exits
	mu         sync.Mutex    // serialises socket requests
	launchMu   sync.Mutex
	listener   *EventListener

	obsMu     sync.Mutex
	nextID    int
	observers map[int]func(name string, data any)
	signals   map[int]func(playback.Signal)
	position  float64
	duration  float64
}

// NewMPV creates a new MPV element; the process starts on first use.
func NewMPV(title string) *MPV {
	return &MPV{
		title:     sanitizeTitle(title),
		exited:    make(chan struct{}),
		observers: make(map[int]func(string, any)),
		signals:   make(map[int]func(playback.Signal)),
	}
}

func (m *MPV) Name() string {
	return MPVName
}

// CanPlayType reports mpv's native support: HLS manifests and any video container.
func (m *MPV) CanPlayType(mediaType string) bool {
	return mediaType == constant.HLSMimeType || strings.HasPrefix(mediaType, "video/")
}

// SetSource launches mpv if needed and loads url directly.
func (m *MPV) SetSource(ctx context.Context, rawURL string) error {
	if err := m.Launch(ctx); err != nil {
		return err
	}
	return m.Load(rawURL, 0)
}

// Play clears the pause flag.
func (m *MPV) Play() error {
	return m.Set("pause", false)
}

// OnSignal registers fn for element signals.
func (m *MPV) OnSignal(fn func(playback.Signal)) (cancel func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.nextID
	m.nextID++
	m.signals[id] = fn

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.signals, id)
	}
}

// Observe registers fn for every raw property change and event.
func (m *MPV) Observe(fn func(name string, data any)) (cancel func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.nextID
	m.nextID++
	m.observers[id] = fn

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

// Position returns the last observed time-pos.
func (m *MPV) Position() float64 {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	return m.position
}

// Duration returns the last observed duration; zero while unknown.
func (m *MPV) Duration() float64 {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	return m.duration
}

// PercentWatched returns how much of the media has been played, 0-100.
func (m *MPV) PercentWatched() float64 {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	if m.duration <= 0 {
		return 0
	}
	return m.position / m.duration * 100
}

// Launch starts an idle mpv process and its event listener.
func (m *MPV) Launch(ctx context.Context) error {
	m.launchMu.Lock()
	defer m.launchMu.Unlock()

	if m.running() {
		return nil
	}

	// os.TempDir rather than /tmp: macOS keeps $TMPDIR under /var/folders
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Errorf("generate socket name: %w", err)
	}
	m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%x.sock", constant.Reelcast, randomBytes))

	// user mpv.conf decides video output and decoding
	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		fmt.Sprintf("--force-media-title=%s", m.title),
		fmt.Sprintf("--title=%s", m.title),
		fmt.Sprintf("--user-agent=%s", constant.UserAgent),
		"--force-window=yes",
		"--idle=yes",
		"--keep-open=yes",
	}

	m.cmd = exec.Command("mpv", args...)
	m.cmd.SysProcAttr = sysProcAttr()
	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	m.exited = make(chan struct{})
	go func(cmd *exec.Cmd, exited chan struct{}) {
		_ = cmd.Wait()
		close(exited)
	}(m.cmd, m.exited)

	if err := m.waitForSocket(ctx); err != nil {
		select {
		case <-m.exited:
		default:
			log.Warnf("killing mpv: socket never became ready")
			_ = killProcess(m.cmd)
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	m.listener = NewEventListener(m.socketPath, m.dispatch)
	if err := m.listener.Start(); err != nil {
		_ = m.Close()
		return err
	}

	return nil
}

// Load replaces the current file with target, starting at start seconds.
func (m *MPV) Load(target string, start float64) error {
	safe, err := sanitizeMediaTarget(target)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	from := "none"
	if start > 0 {
		from = strconv.FormatFloat(start, 'f', 3, 64)
	}
	if err := m.Set("start", from); err != nil {
		return err
	}

	_, err = m.sendCommand("loadfile", safe, "replace")
	return err
}

// Command sends a raw IPC command and returns its data.
func (m *MPV) Command(args ...any) (any, error) {
	return m.sendCommand(args...)
}

// Request sends a command whose effect is bound to the event connection,
// such as request_log_messages.
func (m *MPV) Request(args ...any) error {
	if m.listener == nil {
		return fmt.Errorf("mpv is not running")
	}
	return m.listener.Request(args...)
}

// Set a property.
func (m *MPV) Set(property string, value any) error {
	_, err := m.sendCommand("set_property", property, value)
	return err
}

// TogglePause inverts the pause state.
func (m *MPV) TogglePause() error {
	_, err := m.sendCommand("cycle", "pause")
	return err
}

// Seek moves playback to the given absolute position in seconds.
func (m *MPV) Seek(seconds float64) error {
	_, err := m.sendCommand("seek", seconds, "absolute")
	return err
}

// Wait returns a channel that is closed when the mpv process exits.
func (m *MPV) Wait() <-chan struct{} {
	return m.exited
}

// IsRunning reports whether mpv is responding to IPC commands.
func (m *MPV) IsRunning() bool {
	if !m.running() {
		return false
	}
	_, err := m.sendCommand("get_property", "pid")
	return err == nil
}

func (m *MPV) running() bool {
	if m.cmd == nil {
		return false
	}
	select {
	case <-m.exited:
		return false
	default:
		return true
	}
}

// Close shuts down the mpv process and cleans up resources.
func (m *MPV) Close() error {
	if m.listener != nil {
		m.listener.Stop()
	}

	if m.cmd == nil {
		return nil
	}

	// try a graceful quit first
	_, _ = m.sendCommand("quit")

	select {
	case <-m.exited:
	case <-time.After(3 * time.Second):
		_ = killProcess(m.cmd)
	}

	_ = os.Remove(m.socketPath)
	return nil
}

// Socket returns the IPC socket path.
func (m *MPV) Socket() string {
	return m.socketPath
}

// dispatch fans listener callbacks out to observers and element signals.
func (m *MPV) dispatch(name string, data any) {
	m.obsMu.Lock()
	switch name {
	case "time-pos":
		if v, ok := data.(float64); ok {
			m.position = v
		}
	case "duration":
		if v, ok := data.(float64); ok {
			m.duration = v
		}
	}

	observers := make([]func(string, any), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}

	signal, hasSignal := signalFor(name, data)
	var signals []func(playback.Signal)
	if hasSignal {
		for _, fn := range m.signals {
			signals = append(signals, fn)
		}
	}
	m.obsMu.Unlock()

	for _, fn := range observers {
		fn(name, data)
	}
	for _, fn := range signals {
		fn(signal)
	}
}

// signalFor translates an mpv property change or event into an element signal.
func signalFor(name string, data any) (playback.Signal, bool) {
	switch name {
	case "paused-for-cache":
		stalled, ok := data.(bool)
		if !ok {
			return 0, false
		}
		if stalled {
			return playback.SignalWaiting, true
		}
		return playback.SignalPlaying, true
	case "playback-restart":
		return playback.SignalPlaying, true
	case "file-loaded":
		return playback.SignalLoadedMetadata, true
	case "end-file":
		if event, ok := data.(map[string]any); ok && event["reason"] == "error" {
			return playback.SignalError, true
		}
	}
	return 0, false
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
func (m *MPV) waitForSocket(ctx context.Context) error {
	for i := 0; i < socketWaitRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		case <-time.After(socketWaitDelay):
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// sanitizeMediaTarget validates that a URL is safe to pass to mpv.
// A target starting with '-' would be read as a flag.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty URL")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in URL")
	}

	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("url must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(l), nil
}

func sanitizeTitle(title string) string {
	t := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ", "\x00", "").Replace(title)
	return strings.TrimSpace(t)
}
