package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/video"
	. "github.com/smartystreets/goconvey/convey"
)

const tick = 5 * time.Millisecond

// scriptedSource answers status polls from a script, repeating the last entry.
type scriptedSource struct {
	mu       sync.Mutex
	script   []any
	statuses atomic.Int32
	gets     atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *scriptedSource) Status(ctx context.Context, _ string) (*video.StatusProjection, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}
	s.statuses.Add(1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	next := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	switch v := next.(type) {
	case error:
		return nil, v
	case video.StatusProjection:
		return &v, nil
	default:
		return &video.StatusProjection{Status: v.(video.Status)}, nil
	}
}

func (s *scriptedSource) Get(_ context.Context, id string) (*video.Record, error) {
	s.gets.Add(1)
	return &video.Record{ID: id, Status: video.StatusReady}, nil
}

func waitDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestWatch(t *testing.T) {
	Convey("Given a record that is still processing", t, func() {
		Convey("Reaching ready stops polling and reloads exactly once", func() {
			src := &scriptedSource{script: []any{video.StatusProcessing, video.StatusReady}}
			p := Watch(context.Background(), src, "v1", video.StatusPending, Options{Interval: tick})

			rec, ok := <-p.Reloaded()
			So(ok, ShouldBeTrue)
			So(rec.ID, ShouldEqual, "v1")
			So(waitDone(p.Done()), ShouldBeTrue)

			calls := src.statuses.Load()
			time.Sleep(10 * tick)
			So(src.statuses.Load(), ShouldEqual, calls)
			So(calls, ShouldEqual, 2)
			So(src.gets.Load(), ShouldEqual, 1)
			So(p.Last().Status, ShouldEqual, video.StatusReady)
		})

		Convey("Failing stops polling without a reload", func() {
			src := &scriptedSource{script: []any{video.StatusProjection{Status: video.StatusFailed, ErrorMessage: "unsupported codec"}}}
			p := Watch(context.Background(), src, "v1", video.StatusProcessing, Options{Interval: tick})

			So(waitDone(p.Done()), ShouldBeTrue)
			_, ok := <-p.Reloaded()
			So(ok, ShouldBeFalse)
			So(src.gets.Load(), ShouldEqual, 0)
			So(p.Last().ErrorMessage, ShouldEqual, "unsupported codec")

			calls := src.statuses.Load()
			time.Sleep(10 * tick)
			So(src.statuses.Load(), ShouldEqual, calls)
		})

		Convey("A transport error is reported and polling continues", func() {
			src := &scriptedSource{script: []any{errors.New("connection refused"), video.StatusReady}}
			p := Watch(context.Background(), src, "v1", video.StatusPending, Options{Interval: tick})

			for range p.Updates() {
			}
			So(waitDone(p.Done()), ShouldBeTrue)
			So(src.gets.Load(), ShouldEqual, 1)
			So(src.statuses.Load(), ShouldEqual, 2)
			So(p.Err(), ShouldBeNil)
		})

		Convey("Stop prevents any further request", func() {
			src := &scriptedSource{script: []any{video.StatusProcessing}}
			p := Watch(context.Background(), src, "v1", video.StatusPending, Options{Interval: tick})

			time.Sleep(5 * tick)
			p.Stop()
			calls := src.statuses.Load()
			time.Sleep(10 * tick)
			So(src.statuses.Load(), ShouldEqual, calls)
			So(src.gets.Load(), ShouldEqual, 0)
		})

		Convey("Cancelling the parent context stops the poller", func() {
			ctx, cancel := context.WithCancel(context.Background())
			src := &scriptedSource{script: []any{video.StatusProcessing}}
			p := Watch(ctx, src, "v1", video.StatusPending, Options{Interval: tick})
			cancel()
			So(waitDone(p.Done()), ShouldBeTrue)
		})

		Convey("Slow responses never overlap", func() {
			src := &scriptedSource{script: []any{video.StatusProcessing}, delay: 4 * tick}
			p := Watch(context.Background(), src, "v1", video.StatusPending, Options{Interval: tick})
			time.Sleep(30 * tick)
			p.Stop()
			So(src.maxSeen.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given a record that is already terminal", t, func() {
		for _, status := range []video.Status{video.StatusReady, video.StatusFailed} {
			src := &scriptedSource{script: []any{status}}
			p := Watch(context.Background(), src, "v1", status, Options{Interval: tick})

			So(waitDone(p.Done()), ShouldBeTrue)
			time.Sleep(3 * tick)
			So(src.statuses.Load(), ShouldEqual, 0)
			p.Stop()
		}
	})
}

func TestWatchAgainstService(t *testing.T) {
	Convey("Given a service moving a video pending -> processing -> ready", t, func() {
		var polls, fetches atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/videos/v1/status":
				status := "processing"
				if polls.Add(1) >= 3 {
					status = "ready"
				}
				_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
			case "/api/videos/v1":
				fetches.Add(1)
				_, _ = io.WriteString(w, `{"id":"v1","status":"ready","streaming_url":"http://cdn/v1/master.m3u8","resolutions":[{"name":"720p","width":1280,"height":720,"bitrate":2800,"segment_path":"720p"}]}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		client, err := api.New(srv.URL, srv.Client())
		So(err, ShouldBeNil)

		p := Watch(context.Background(), client, "v1", video.StatusPending, Options{Interval: tick})
		rec := <-p.Reloaded()
		So(waitDone(p.Done()), ShouldBeTrue)

		So(rec, ShouldNotBeNil)
		So(rec.Playable(), ShouldBeTrue)
		So(rec.Resolutions, ShouldHaveLength, 1)
		So(fetches.Load(), ShouldEqual, 1)

		polled := polls.Load()
		time.Sleep(10 * tick)
		So(polls.Load(), ShouldEqual, polled)
	})
}

func TestWatchList(t *testing.T) {
	Convey("Given a visible page", t, func() {
		var fetches atomic.Int32
		settled := &video.Page{Videos: []video.Record{{ID: "a", Status: video.StatusReady}, {ID: "b", Status: video.StatusFailed}}, Total: 2}
		fetch := func(context.Context) (*video.Page, error) {
			fetches.Add(1)
			return settled, nil
		}

		Convey("Every record terminal means no request at all", func() {
			lp := WatchList(context.Background(), settled, fetch, Options{Interval: tick})
			time.Sleep(10 * tick)
			lp.Stop()
			So(fetches.Load(), ShouldEqual, 0)
		})

		Convey("A pending record triggers a refresh until the page settles", func() {
			pending := &video.Page{Videos: []video.Record{{ID: "a", Status: video.StatusReady}, {ID: "b", Status: video.StatusPending}}, Total: 2}
			lp := WatchList(context.Background(), pending, fetch, Options{Interval: tick})

			update := <-lp.Updates()
			So(update.Err, ShouldBeNil)
			So(update.Page.HasPending(), ShouldBeFalse)

			time.Sleep(10 * tick)
			lp.Stop()
			So(fetches.Load(), ShouldEqual, 1)
			So(lp.Visible(), ShouldEqual, settled)
		})

		Convey("Stop closes the update stream", func() {
			lp := WatchList(context.Background(), settled, fetch, Options{Interval: tick})
			lp.Stop()
			_, ok := <-lp.Updates()
			So(ok, ShouldBeFalse)
		})
	})
}
