package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
)

var (
	ErrTransferInFlight = errors.New("an upload is already in progress")
	ErrTransferFailed   = errors.New("upload failed, please try again")
)

// Phase of a tracker.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseUploading:
		return "uploading"
	case PhaseComplete:
		return "complete"
	default:
		return "idle"
	}
}

// State is the progress view of the current transfer.
type State struct {
	Phase   Phase
	Percent int
	Sent    int64
	Total   int64
	Record  *video.Record
}

// String renders the state as a one-line progress report.
func (s State) String() string {
	switch s.Phase {
	case PhaseUploading:
		return fmt.Sprintf("%3d%% %s / %s", s.Percent, humanize.IBytes(uint64(s.Sent)), humanize.IBytes(uint64(s.Total)))
	case PhaseComplete:
		return fmt.Sprintf("100%% %s", humanize.IBytes(uint64(s.Total)))
	default:
		return s.Phase.String()
	}
}

// Tracker drives at most one transfer at a time.
type Tracker struct {
	channel Channel
	limit   int64
	observe func(State)

	mu       sync.Mutex
	state    State
	inFlight bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLimit overrides MaxUploadSize.
func WithLimit(limit int64) Option {
	return func(t *Tracker) {
		t.limit = limit
	}
}

// WithObserver registers fn to receive every state change.
// fn runs on the goroutine that called Start.
func WithObserver(fn func(State)) Option {
	return func(t *Tracker) {
		t.observe = fn
	}
}

// NewTracker creates a tracker sending over channel.
func NewTracker(channel Channel, opts ...Option) *Tracker {
	t := &Tracker{channel: channel, limit: MaxUploadSize}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current progress view.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start validates src, transfers it and blocks until a terminal event or ctx is done.
func (t *Tracker) Start(ctx context.Context, src *filesystem.Upload, meta Metadata) (*video.Record, error) {
	if err := Validate(src, t.limit); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return nil, ErrTransferInFlight
	}
	t.inFlight = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight = false
		t.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.set(State{Phase: PhaseUploading, Total: src.Size})
	events := t.channel.Open(ctx, src, meta)

	for {
		select {
		case <-ctx.Done():
			t.set(State{})
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				t.set(State{})
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: transfer closed without a result", ErrTransferFailed)
			}

			switch ev := ev.(type) {
			case Progress:
				t.progress(ev)
			case Done:
				total := t.State().Total
				t.set(State{Phase: PhaseComplete, Percent: 100, Sent: total, Total: total, Record: ev.Record})
				log.WithFields(log.Fields{"file": src.Name, "video": ev.Record.ID}).Info("upload complete")
				return ev.Record, nil
			case Failed:
				t.set(State{})
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: %w", ErrTransferFailed, ev.Err)
			}
		}
	}
}

// Percent computes round(100*sent/total) clamped to [0,100]; zero when total is unknown.
func Percent(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(sent) / float64(total)))
	return util.Clamp(p, 0, 100)
}

func (t *Tracker) progress(p Progress) {
	t.mu.Lock()
	s := t.state
	if p.Sent > s.Sent {
		s.Sent = p.Sent
	}
	if p.Total > 0 {
		s.Total = p.Total
	}
	if pct := Percent(s.Sent, s.Total); pct > s.Percent {
		s.Percent = pct
	}
	changed := s != t.state
	t.state = s
	t.mu.Unlock()

	if changed && t.observe != nil {
		t.observe(s)
	}
}

func (t *Tracker) set(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()

	if t.observe != nil {
		t.observe(s)
	}
}
