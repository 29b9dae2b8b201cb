package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reelcast/reelcast/constant"
	"github.com/reelcast/reelcast/playback"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeMPV accepts IPC connections on a unix socket and records every command.
type fakeMPV struct {
	path     string
	ln       net.Listener
	mu       sync.Mutex
	commands [][]any
	conns    []net.Conn
}

func newFakeMPV() *fakeMPV {
	dir, err := os.MkdirTemp("", "mpvtest")
	if err != nil {
		panic(err)
	}
	path := filepath.Join(dir, "mpv.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		panic(err)
	}

	f := &fakeMPV{path: path, ln: ln}
	go f.serve()
	return f
}

func (f *fakeMPV) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		go f.handle(conn)
	}
}

func (f *fakeMPV) handle(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var cmd ipcCommand
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, cmd.Command)
		f.mu.Unlock()

		// an unrelated event first, as mpv may interleave them
		_, _ = fmt.Fprintln(conn, `{"event":"idle"}`)
		if cmd.Command[0] == "get_property" {
			_, _ = fmt.Fprintln(conn, `{"data":12.5,"error":"success"}`)
		} else {
			_, _ = fmt.Fprintln(conn, `{"data":null,"error":"success"}`)
		}
	}
}

// broadcast writes line to every open connection.
func (f *fakeMPV) broadcast(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_, _ = fmt.Fprintln(c, line)
	}
}

func (f *fakeMPV) recorded() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.commands...)
}

func (f *fakeMPV) close() {
	_ = f.ln.Close()
	f.mu.Lock()
	for _, c := range f.conns {
		_ = c.Close()
	}
	f.mu.Unlock()
	_ = os.RemoveAll(filepath.Dir(f.path))
}

func TestSanitize(t *testing.T) {
	Convey("Media targets", t, func() {
		_, err := sanitizeMediaTarget("--script=evil.lua")
		So(err, ShouldNotBeNil)

		_, err = sanitizeMediaTarget("ftp://example.com/a.m3u8")
		So(err, ShouldNotBeNil)

		_, err = sanitizeMediaTarget("http://x/a\nb")
		So(err, ShouldNotBeNil)

		target, err := sanitizeMediaTarget(" https://cdn/v1/master.m3u8 ")
		So(err, ShouldBeNil)
		So(target, ShouldEqual, "https://cdn/v1/master.m3u8")

		target, err = sanitizeMediaTarget("videos/../videos/a.mp4")
		So(err, ShouldBeNil)
		So(target, ShouldEqual, "videos/a.mp4")
	})

	Convey("Titles", t, func() {
		So(sanitizeTitle("  Holiday\n\tclip\x00 "), ShouldEqual, "Holiday  clip")
	})
}

func TestNew(t *testing.T) {
	Convey("New", t, func() {
		el, err := New("MPV", "t")
		So(err, ShouldBeNil)
		So(el.Name(), ShouldEqual, MPVName)

		el, err = New("iina", "t")
		So(err, ShouldBeNil)
		So(el.Name(), ShouldEqual, IINAName)

		_, err = New("vlc", "t")
		So(err, ShouldNotBeNil)
	})
}

func TestSignals(t *testing.T) {
	Convey("mpv events map to element signals", t, func() {
		s, ok := signalFor("paused-for-cache", true)
		So(ok, ShouldBeTrue)
		So(s, ShouldEqual, playback.SignalWaiting)

		s, ok = signalFor("paused-for-cache", false)
		So(ok, ShouldBeTrue)
		So(s, ShouldEqual, playback.SignalPlaying)

		_, ok = signalFor("paused-for-cache", nil)
		So(ok, ShouldBeFalse)

		s, ok = signalFor("file-loaded", map[string]any{"event": "file-loaded"})
		So(ok, ShouldBeTrue)
		So(s, ShouldEqual, playback.SignalLoadedMetadata)

		s, ok = signalFor("end-file", map[string]any{"event": "end-file", "reason": "error"})
		So(ok, ShouldBeTrue)
		So(s, ShouldEqual, playback.SignalError)

		_, ok = signalFor("end-file", map[string]any{"event": "end-file", "reason": "eof"})
		So(ok, ShouldBeFalse)
	})

	Convey("Given an mpv element", t, func() {
		m := NewMPV("clip")
		So(m.CanPlayType(constant.HLSMimeType), ShouldBeTrue)
		So(m.CanPlayType("audio/mpeg"), ShouldBeFalse)

		var got []playback.Signal
		cancel := m.OnSignal(func(s playback.Signal) { got = append(got, s) })
		var raw []string
		stop := m.Observe(func(name string, _ any) { raw = append(raw, name) })

		m.dispatch("time-pos", 30.0)
		m.dispatch("duration", 120.0)
		m.dispatch("paused-for-cache", true)
		m.dispatch("paused-for-cache", false)

		So(m.Position(), ShouldEqual, 30.0)
		So(m.PercentWatched(), ShouldEqual, 25.0)
		So(got, ShouldResemble, []playback.Signal{playback.SignalWaiting, playback.SignalPlaying})
		So(raw, ShouldResemble, []string{"time-pos", "duration", "paused-for-cache", "paused-for-cache"})

		Convey("Cancelled handlers receive nothing more", func() {
			cancel()
			stop()
			m.dispatch("paused-for-cache", true)
			So(got, ShouldHaveLength, 2)
			So(raw, ShouldHaveLength, 4)
		})
	})
}

func TestIPC(t *testing.T) {
	Convey("Given an mpv socket", t, func() {
		fake := newFakeMPV()
		defer fake.close()

		Convey("Replies are read past interleaved events", func() {
			data, err := doSendCommand(fake.path, []any{"get_property", "time-pos"})
			So(err, ShouldBeNil)
			So(data, ShouldEqual, 12.5)
		})

		Convey("The listener observes on its own connection and forwards events", func() {
			events := make(chan string, 16)
			el := NewEventListener(fake.path, func(name string, data any) {
				events <- fmt.Sprintf("%s=%v", name, data)
			})
			So(el.Start(), ShouldBeNil)
			defer el.Stop()

			So(el.Request("request_log_messages", "warn"), ShouldBeNil)

			deadline := time.After(2 * time.Second)
			for len(fake.recorded()) < len(observed)+1 {
				select {
				case <-deadline:
					So(len(fake.recorded()), ShouldEqual, len(observed)+1)
					return
				case <-time.After(10 * time.Millisecond):
				}
			}

			cmds := fake.recorded()
			So(cmds[0], ShouldResemble, []any{"observe_property", 1.0, "time-pos"})
			So(cmds[len(cmds)-1], ShouldResemble, []any{"request_log_messages", "warn"})

			fake.broadcast(`{"event":"property-change","id":4,"name":"paused-for-cache","data":true}`)

			found := false
			for !found {
				select {
				case ev := <-events:
					found = ev == "paused-for-cache=true"
				case <-time.After(2 * time.Second):
					So("event forwarded", ShouldBeEmpty)
					return
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}
