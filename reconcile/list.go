package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/video"
)

// Pager fetches the currently visible page of the library.
type Pager func(ctx context.Context) (*video.Page, error)

// PageUpdate is one refresh of the visible page.
type PageUpdate struct {
	Page *video.Page
	Err  error
}

// ListPoller refreshes a page of records while any of them can still change.
type ListPoller struct {
	cancel  context.CancelFunc
	done    chan struct{}
	updates chan PageUpdate

	mu      sync.Mutex
	visible *video.Page
}

// WatchList polls fetch on a coarse cadence. A tick where every visible record
// is terminal is a no-op and makes no request.
func WatchList(ctx context.Context, visible *video.Page, fetch Pager, opts Options) *ListPoller {
	ctx, cancel := context.WithCancel(ctx)
	lp := &ListPoller{
		cancel:  cancel,
		done:    make(chan struct{}),
		updates: make(chan PageUpdate, 1),
		visible: visible,
	}

	go lp.run(ctx, fetch, interval(opts.Interval, key.ReconcileListInterval, DefaultListInterval))
	return lp
}

// Updates delivers refreshed pages, latest wins. Closed when the poller stops.
func (lp *ListPoller) Updates() <-chan PageUpdate {
	return lp.updates
}

// SetVisible replaces the page the poller inspects, e.g. after navigation or an upload.
func (lp *ListPoller) SetVisible(page *video.Page) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.visible = page
}

// Visible returns the page the poller last saw.
func (lp *ListPoller) Visible() *video.Page {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.visible
}

func (lp *ListPoller) Done() <-chan struct{} {
	return lp.done
}

// Stop cancels polling and waits for the loop to exit.
func (lp *ListPoller) Stop() {
	lp.cancel()
	<-lp.done
}

func (lp *ListPoller) run(ctx context.Context, fetch Pager, every time.Duration) {
	defer close(lp.done)
	defer close(lp.updates)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		visible := lp.Visible()
		if visible == nil || !visible.HasPending() {
			continue
		}

		page, err := fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warnf("library refresh failed: %s", err)
			publish(lp.updates, PageUpdate{Err: err})
			continue
		}

		lp.SetVisible(page)
		publish(lp.updates, PageUpdate{Page: page})
	}
}
