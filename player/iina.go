package player

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/reelcast/reelcast/constant"
	"github.com/reelcast/reelcast/playback"
)

// IINA plays streams natively through macOS LaunchServices.
// It exposes no IPC, so no adaptive engine can drive it and the only
// signal it raises is loaded-metadata once the app has been launched.
type IINA struct {
	title  string
	cmd    *exec.Cmd
	exited chan struct{}

	mu      sync.Mutex
	nextID  int
	signals map[int]func(playback.Signal)
}

func NewIINA(title string) *IINA {
	return &IINA{
		title:   sanitizeTitle(title),
		exited:  make(chan struct{}),
		signals: make(map[int]func(playback.Signal)),
	}
}

func (i *IINA) Name() string {
	return IINAName
}

func (i *IINA) CanPlayType(mediaType string) bool {
	return runtime.GOOS == constant.Darwin &&
		(mediaType == constant.HLSMimeType || strings.HasPrefix(mediaType, "video/"))
}

func (i *IINA) SetSource(ctx context.Context, rawURL string) error {
	if runtime.GOOS != constant.Darwin {
		return fmt.Errorf("IINA is only supported on macOS")
	}

	safe, err := sanitizeMediaTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	// IINA forwards mpv options given after --args
	args := []string{
		"-W", "-a", "IINA", "--args",
		fmt.Sprintf("--mpv-force-media-title=%s", i.title),
		fmt.Sprintf("--mpv-user-agent=%s", constant.UserAgent),
		safe,
	}

	i.cmd = exec.CommandContext(ctx, "open", args...)
	if err := i.cmd.Start(); err != nil {
		return fmt.Errorf("LaunchServices failed to invoke IINA: %w", err)
	}

	go func() {
		_ = i.cmd.Wait()
		close(i.exited)
	}()

	go i.emit(playback.SignalLoadedMetadata)
	return nil
}

// Play is a no-op: IINA starts playing on launch.
func (i *IINA) Play() error {
	return nil
}

func (i *IINA) OnSignal(fn func(playback.Signal)) (cancel func()) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := i.nextID
	i.nextID++
	i.signals[id] = fn

	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		delete(i.signals, id)
	}
}

// Position is unknown without IPC.
func (i *IINA) Position() float64 {
	return 0
}

func (i *IINA) Wait() <-chan struct{} {
	return i.exited
}

func (i *IINA) Close() error {
	if i.cmd != nil && i.cmd.Process != nil {
		_ = i.cmd.Process.Kill()
	}
	return nil
}

func (i *IINA) emit(sig playback.Signal) {
	i.mu.Lock()
	fns := make([]func(playback.Signal), 0, len(i.signals))
	for _, fn := range i.signals {
		fns = append(fns, fn)
	}
	i.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}
