// Package reconcile keeps displayed records current while the service is
// still transcoding them.
//
// Polling runs at a fixed cadence without backoff or jitter; transcoding jobs
// take minutes, so the cost is bounded by the job lifetime.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/video"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultListInterval = 10 * time.Second
)

// Source is the part of the service a record poller talks to.
type Source interface {
	Status(ctx context.Context, id string) (*video.StatusProjection, error)
	Get(ctx context.Context, id string) (*video.Record, error)
}

// Options tune a poller. Zero values fall back to the configured cadence.
type Options struct {
	Interval time.Duration
}

// Update is one observation made by a poller.
type Update struct {
	Status video.StatusProjection
	Err    error
}

// Poller follows a single record until it reaches a terminal status.
type Poller struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	updates  chan Update
	reloaded chan *video.Record

	mu   sync.Mutex
	last video.StatusProjection
	err  error
}

// Watch starts polling id when initial is pending or processing.
// For any other status the returned poller is already done and issues no requests.
//
// On ready the ticker is stopped and the full record is fetched exactly once,
// then delivered on Reloaded. On failed polling stops without a reload.
func Watch(ctx context.Context, src Source, id string, initial video.Status, opts Options) *Poller {
	p := &Poller{
		id:       id,
		done:     make(chan struct{}),
		updates:  make(chan Update, 1),
		reloaded: make(chan *video.Record, 1),
		last:     video.StatusProjection{Status: initial},
	}

	if initial.IsTerminal() || !initial.IsValid() {
		p.cancel = func() {}
		close(p.updates)
		close(p.reloaded)
		close(p.done)
		return p
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx, src, interval(opts.Interval, key.ReconcileInterval, DefaultInterval))
	return p
}

// Updates delivers the latest observation; older unread ones are replaced.
// It is closed when the poller stops.
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

// Reloaded receives the full record after the service reports ready.
// It is closed when the poller stops.
func (p *Poller) Reloaded() <-chan *video.Record {
	return p.reloaded
}

// Done is closed once the poller has stopped and will make no further requests.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Stop cancels polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// Last returns the most recent status projection.
func (p *Poller) Last() video.StatusProjection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Err returns the error of the final reload, if it failed.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Poller) run(ctx context.Context, src Source, every time.Duration) {
	defer close(p.done)
	defer close(p.reloaded)
	defer close(p.updates)

	logger := log.WithFields(log.Fields{"video": p.id})
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := src.Status(ctx, p.id)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("status poll failed: %s", err)
			publish(p.updates, Update{Status: p.Last(), Err: err})
			continue
		}

		p.observe(logger, *st)
		publish(p.updates, Update{Status: *st})

		switch st.Status {
		case video.StatusReady:
			ticker.Stop()
			p.reload(ctx, logger, src)
			return
		case video.StatusFailed:
			logger.Infof("processing failed: %s", st.ErrorMessage)
			return
		}
	}
}

func (p *Poller) observe(logger *logrus.Entry, st video.StatusProjection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !st.Status.IsValid() {
		logger.Warnf("unknown status %q", st.Status)
	} else if !p.last.Status.CanTransition(st.Status) {
		logger.Warnf("unexpected transition %s -> %s", p.last.Status, st.Status)
	}
	p.last = st
}

func (p *Poller) reload(ctx context.Context, logger *logrus.Entry, src Source) {
	rec, err := src.Get(ctx, p.id)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf("reload after ready failed: %s", err)
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		return
	}
	p.reloaded <- rec
}

// publish replaces any unread value so the loop never blocks on a slow reader.
// ch must have capacity 1 and a single sender.
func publish[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func interval(explicit time.Duration, configKey string, fallback time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	if secs := viper.GetInt(configKey); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
