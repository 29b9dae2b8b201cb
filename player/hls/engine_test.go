package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reelcast/reelcast/playback"
	. "github.com/smartystreets/goconvey/convey"
)

const master = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080p/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720p/playlist.m3u8
`

const media = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.0,
segment_000.ts
#EXT-X-ENDLIST
`

type load struct {
	target string
	start  float64
}

type fakeController struct {
	mu        sync.Mutex
	launchErr error
	loads     []load
	sets      map[string]any
	commands  [][]any
	requests  [][]any
	observers map[int]func(string, any)
	next      int
	position  float64
}

func newFakeController() *fakeController {
	return &fakeController{sets: map[string]any{}, observers: map[int]func(string, any){}}
}

func (f *fakeController) CanPlayType(string) bool                 { return true }
func (f *fakeController) SetSource(context.Context, string) error { return nil }
func (f *fakeController) Play() error                             { return nil }
func (f *fakeController) OnSignal(func(playback.Signal)) func()   { return func() {} }
func (f *fakeController) Launch(context.Context) error            { return f.launchErr }
func (f *fakeController) Request(args ...any) error               { f.record(&f.requests, args); return nil }
func (f *fakeController) Command(args ...any) (any, error) {
	f.record(&f.commands, args)
	return nil, nil
}
func (f *fakeController) Position() float64 { f.mu.Lock(); defer f.mu.Unlock(); return f.position }
func (f *fakeController) record(into *[][]any, args []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*into = append(*into, args)
}

func (f *fakeController) Load(target string, start float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, load{target, start})
	return nil
}

func (f *fakeController) Set(property string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets[property] = value
	return nil
}

func (f *fakeController) Observe(fn func(string, any)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.observers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers, id)
	}
}

func (f *fakeController) fire(name string, data any) {
	f.mu.Lock()
	fns := make([]func(string, any), 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(name, data)
	}
}

func (f *fakeController) snapshot() ([]load, map[string]any, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sets := make(map[string]any, len(f.sets))
	for k, v := range f.sets {
		sets[k] = v
	}
	return append([]load(nil), f.loads...), sets, len(f.observers)
}

// collect gathers engine events on a channel.
func collect(e *Engine) chan playback.Event {
	events := make(chan playback.Event, 32)
	e.Subscribe(func(ev playback.Event) { events <- ev })
	return events
}

func next(events chan playback.Event) playback.Event {
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		return nil
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func manifestServer(hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/videos/v1/master.m3u8":
			_, _ = fmt.Fprint(w, master)
		case "/videos/v1/720p/playlist.m3u8":
			_, _ = fmt.Fprint(w, media)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFactory(t *testing.T) {
	Convey("Only controllable elements are supported", t, func() {
		f := Factory{}
		So(f.Supported(newFakeController()), ShouldBeTrue)
		So(f.Supported(plainElement{}), ShouldBeFalse)

		engine, err := f.New(playback.DefaultEngineConfig)
		So(err, ShouldBeNil)
		So(engine, ShouldNotBeNil)
	})
}

type plainElement struct{}

func (plainElement) CanPlayType(string) bool                 { return true }
func (plainElement) SetSource(context.Context, string) error { return nil }
func (plainElement) Play() error                             { return nil }
func (plainElement) OnSignal(func(playback.Signal)) func()   { return func() {} }
func (plainElement) Position() float64                       { return 0 }

func TestEngine(t *testing.T) {
	Convey("Given an engine attached to a controllable element", t, func() {
		srv := manifestServer(nil)
		defer srv.Close()
		source := srv.URL + "/videos/v1/master.m3u8"

		ctrl := newFakeController()
		e := New(playback.DefaultEngineConfig, srv.Client())
		events := collect(e)
		defer e.Destroy()

		So(e.LoadSource(source), ShouldBeNil)
		So(e.AttachMedia(ctrl), ShouldBeNil)

		ev := next(events)
		parsed, ok := ev.(playback.ManifestParsed)
		So(ok, ShouldBeTrue)

		Convey("Levels are ordered by bitrate with resolved URIs", func() {
			So(parsed.Levels, ShouldHaveLength, 3)
			So(parsed.Levels[0].Height, ShouldEqual, 360)
			So(parsed.Levels[1].Name, ShouldEqual, "720p")
			So(parsed.Levels[2].Bitrate, ShouldEqual, 5_000_000)
			So(parsed.Levels[1].URI, ShouldEqual, srv.URL+"/videos/v1/720p/playlist.m3u8")
			for i, l := range parsed.Levels {
				So(l.Index, ShouldEqual, i)
			}
		})

		Convey("The master manifest is loaded with the engine tuning applied", func() {
			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)
			loads, sets, _ := ctrl.snapshot()
			So(loads[0], ShouldResemble, load{source, 0})
			So(sets["demuxer-lavf-o"], ShouldEqual, "http_multiple=1")
			So(sets["demuxer-max-back-bytes"], ShouldEqual, "56250000")
			So(ctrl.requests, ShouldResemble, [][]any{{"request_log_messages", "warn"}})
		})

		Convey("Decoded frame height is reported as a level switch", func() {
			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)
			ctrl.fire("video-params", map[string]any{"w": 1280.0, "h": 720.0})
			So(next(events), ShouldResemble, playback.LevelSwitched{Level: 1})

			Convey("And repeated params do not repeat the event", func() {
				ctrl.fire("video-params", map[string]any{"w": 1280.0, "h": 720.0})
				ctrl.fire("video-params", map[string]any{"w": 1920.0, "h": 1080.0})
				So(next(events), ShouldResemble, playback.LevelSwitched{Level: 2})
			})
		})

		Convey("Pinning a level reloads its variant from the current position", func() {
			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)
			ctrl.mu.Lock()
			ctrl.position = 33
			ctrl.mu.Unlock()

			So(e.SetLevel(0), ShouldBeNil)
			loads, _, _ := ctrl.snapshot()
			So(loads[len(loads)-1], ShouldResemble, load{parsed.Levels[0].URI, 33})

			So(e.SetLevel(playback.AutoLevel), ShouldBeNil)
			loads, _, _ = ctrl.snapshot()
			So(loads[len(loads)-1], ShouldResemble, load{source, 33})
		})

		Convey("Load errors become fatal faults of the matching kind", func() {
			ctrl.fire("end-file", map[string]any{"event": "end-file", "reason": "error", "file_error": "loading failed"})
			So(next(events), ShouldResemble, playback.Fault{Kind: playback.NetworkFault, Fatal: true, Detail: "loading failed"})

			ctrl.fire("end-file", map[string]any{"event": "end-file", "reason": "error", "file_error": "unrecognized file format"})
			So(next(events), ShouldResemble, playback.Fault{Kind: playback.MediaFault, Fatal: true, Detail: "unrecognized file format"})

			ctrl.fire("end-file", map[string]any{"event": "end-file", "reason": "error", "file_error": "init failed"})
			So(next(events), ShouldResemble, playback.Fault{Kind: playback.OtherFault, Fatal: true, Detail: "init failed"})
		})

		Convey("Warnings are non-fatal faults and ordinary file ends are ignored", func() {
			ctrl.fire("end-file", map[string]any{"event": "end-file", "reason": "eof"})
			ctrl.fire("log-message", map[string]any{"prefix": "ffmpeg", "level": "warn", "text": "HTTP error 503\n"})
			So(next(events), ShouldResemble, playback.Fault{Kind: playback.NetworkFault, Fatal: false, Detail: "HTTP error 503"})
		})

		Convey("Media recovery switches to software decoding and reloads in place", func() {
			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)
			ctrl.mu.Lock()
			ctrl.position = 12
			ctrl.mu.Unlock()

			So(e.RecoverMediaError(), ShouldBeNil)
			loads, sets, _ := ctrl.snapshot()
			So(sets["hwdec"], ShouldEqual, "no")
			So(loads[len(loads)-1], ShouldResemble, load{source, 12})
		})

		Convey("Destroy stops playback and detaches from the element", func() {
			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)
			So(e.Destroy(), ShouldBeNil)

			_, _, observers := ctrl.snapshot()
			So(observers, ShouldEqual, 0)
			So(ctrl.commands[len(ctrl.commands)-1], ShouldResemble, []any{"stop"})
			So(e.SetLevel(1), ShouldEqual, ErrDestroyed)
			So(e.StartLoad(0), ShouldEqual, ErrDestroyed)
			So(e.Destroy(), ShouldBeNil)
		})
	})
}

func TestEngineStartPosition(t *testing.T) {
	Convey("Given an engine configured to resume", t, func() {
		srv := manifestServer(nil)
		defer srv.Close()
		source := srv.URL + "/videos/v1/master.m3u8"

		cfg := playback.DefaultEngineConfig
		cfg.StartPosition = 42
		ctrl := newFakeController()
		e := New(cfg, srv.Client())
		defer e.Destroy()

		So(e.LoadSource(source), ShouldBeNil)
		So(e.AttachMedia(ctrl), ShouldBeNil)

		Convey("The first load starts from the saved position", func() {
			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)
			loads, _, _ := ctrl.snapshot()
			So(loads[0], ShouldResemble, load{source, 42})
		})
	})
}

func TestEngineFaults(t *testing.T) {
	Convey("Given a manifest that cannot be fetched", t, func() {
		var hits atomic.Int32
		srv := manifestServer(&hits)
		defer srv.Close()

		manifestRetryDelay = time.Millisecond
		ctrl := newFakeController()
		e := New(playback.DefaultEngineConfig, srv.Client())
		events := collect(e)
		defer e.Destroy()

		So(e.LoadSource(srv.URL+"/videos/missing/master.m3u8"), ShouldBeNil)
		So(e.AttachMedia(ctrl), ShouldBeNil)

		fault, ok := next(events).(playback.Fault)
		So(ok, ShouldBeTrue)
		So(fault.Kind, ShouldEqual, playback.NetworkFault)
		So(fault.Fatal, ShouldBeTrue)
		So(fault.Detail, ShouldStartWith, "manifestLoadError")

		Convey("StartLoad fetches the manifest again", func() {
			So(e.StartLoad(0), ShouldBeNil)
			So(next(events), ShouldHaveSameTypeAs, playback.Fault{})
			So(hits.Load(), ShouldEqual, 2)
		})
	})

	Convey("Given an element that cannot be launched", t, func() {
		srv := manifestServer(nil)
		defer srv.Close()

		ctrl := newFakeController()
		ctrl.launchErr = fmt.Errorf("mpv: executable file not found")
		e := New(playback.DefaultEngineConfig, srv.Client())
		events := collect(e)
		defer e.Destroy()

		So(e.AttachMedia(ctrl), ShouldBeNil)
		fault, ok := next(events).(playback.Fault)
		So(ok, ShouldBeTrue)
		So(fault.Kind, ShouldEqual, playback.OtherFault)
		So(fault.Fatal, ShouldBeTrue)
	})

	Convey("A media playlist is a single level", t, func() {
		srv := manifestServer(nil)
		defer srv.Close()

		levels, err := fetchLevels(context.Background(), srv.Client(), srv.URL+"/videos/v1/720p/playlist.m3u8")
		So(err, ShouldBeNil)
		So(levels, ShouldHaveLength, 1)
	})

	Convey("Resolutions parse", t, func() {
		w, h := parseResolution("1280x720")
		So(w, ShouldEqual, 1280)
		So(h, ShouldEqual, 720)
		w, h = parseResolution("")
		So(w+h, ShouldEqual, 0)
	})
}

// failingController reports every load as a failed segment fetch.
type failingController struct {
	*fakeController
}

func (f failingController) Load(target string, start float64) error {
	if err := f.fakeController.Load(target, start); err != nil {
		return err
	}
	go f.fire("end-file", map[string]any{"event": "end-file", "reason": "error", "file_error": "loading failed"})
	return nil
}

func TestEngineReload(t *testing.T) {
	Convey("Given a session playing from a host whose segments keep failing", t, func() {
		srv := manifestServer(nil)
		defer srv.Close()

		reloadDelay = 20 * time.Millisecond
		ctrl := failingController{newFakeController()}
		session := playback.NewSession(Factory{Client: srv.Client()})
		defer session.Detach()
		So(session.Attach(context.Background(), ctrl, srv.URL+"/videos/v1/master.m3u8"), ShouldBeNil)

		Convey("Reloads are spaced instead of issued back to back", func() {
			time.Sleep(300 * time.Millisecond)
			loads, _, _ := ctrl.snapshot()
			So(len(loads), ShouldBeGreaterThanOrEqualTo, 3)
			So(len(loads), ShouldBeLessThanOrEqualTo, 300/20+2)
			So(session.Err(), ShouldBeNil)

			Convey("And they stop once the session lets go", func() {
				session.Detach()
				time.Sleep(2 * reloadDelay)
				before, _, _ := ctrl.snapshot()
				time.Sleep(5 * reloadDelay)
				after, _, _ := ctrl.snapshot()
				So(after, ShouldHaveLength, len(before))
			})
		})
	})

	Convey("Given an engine playing the master manifest", t, func() {
		srv := manifestServer(nil)
		defer srv.Close()
		source := srv.URL + "/videos/v1/master.m3u8"

		reloadDelay = 20 * time.Millisecond
		ctrl := newFakeController()
		e := New(playback.DefaultEngineConfig, srv.Client())
		defer e.Destroy()

		So(e.LoadSource(source), ShouldBeNil)
		So(e.AttachMedia(ctrl), ShouldBeNil)
		So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 1 }), ShouldBeTrue)

		Convey("Repeated StartLoad calls join one delayed reload from the latest position", func() {
			for i := range 5 {
				So(e.StartLoad(float64(10+i)), ShouldBeNil)
			}
			loads, _, _ := ctrl.snapshot()
			So(loads, ShouldHaveLength, 1)

			So(eventually(func() bool { loads, _, _ := ctrl.snapshot(); return len(loads) == 2 }), ShouldBeTrue)
			time.Sleep(3 * reloadDelay)
			loads, _, _ = ctrl.snapshot()
			So(loads, ShouldHaveLength, 2)
			So(loads[1], ShouldResemble, load{source, 14})
		})

		Convey("A pending reload is dropped by Destroy", func() {
			So(e.StartLoad(5), ShouldBeNil)
			So(e.Destroy(), ShouldBeNil)
			time.Sleep(3 * reloadDelay)
			loads, _, _ := ctrl.snapshot()
			So(loads, ShouldHaveLength, 1)
		})
	})
}
