package watch

import (
	"context"
	"testing"
	"time"

	"github.com/reelcast/reelcast/config"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/history"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func init() {
	filesystem.SetMemMapFs()
	lo.Must0(config.Setup())
}

type nativeElement struct {
	exited chan struct{}
	closed bool
}

func (n *nativeElement) CanPlayType(string) bool                        { return true }
func (n *nativeElement) SetSource(context.Context, string) error        { return nil }
func (n *nativeElement) Play() error                                    { return nil }
func (n *nativeElement) OnSignal(func(playback.Signal)) (cancel func()) { return func() {} }
func (n *nativeElement) Position() float64                              { return 30 }
func (n *nativeElement) Duration() float64                              { return 120 }
func (n *nativeElement) Name() string                                   { return "native" }
func (n *nativeElement) Wait() <-chan struct{}                          { return n.exited }
func (n *nativeElement) Close() error                                   { n.closed = true; return nil }

func ready() *video.Record {
	return &video.Record{
		ID:           "v1",
		Title:        "Holiday",
		Status:       video.StatusReady,
		StreamingURL: lo.ToPtr("http://localhost/videos/v1/master.m3u8"),
	}
}

func TestEngineConfig(t *testing.T) {
	Convey("Engine tuning follows the configuration", t, func() {
		viper.Set(key.PlayerBackBuffer, 30)
		viper.Set(key.PlayerLowLatency, true)
		Reset(func() {
			viper.Set(key.PlayerBackBuffer, 90)
			viper.Set(key.PlayerLowLatency, false)
		})

		cfg := EngineConfig()
		So(cfg.BackBuffer, ShouldEqual, 30*time.Second)
		So(cfg.LowLatency, ShouldBeTrue)
		So(cfg.ParallelFetch, ShouldBeTrue)
	})
}

func TestStart(t *testing.T) {
	Convey("Records that are not ready are refused before a player starts", t, func() {
		rec := ready()
		rec.Status = video.StatusProcessing
		_, err := Start(context.Background(), rec)
		So(err, ShouldEqual, playback.ErrNotPlayable)
	})

	Convey("An unknown player is reported", t, func() {
		viper.Set(key.Player, "vlc")
		Reset(func() { viper.Set(key.Player, "mpv") })

		_, err := Start(context.Background(), ready())
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "unknown player")
	})
}

func TestClose(t *testing.T) {
	Convey("Given a record playing natively", t, func() {
		So(history.Remove("v1"), ShouldBeNil)

		el := &nativeElement{exited: make(chan struct{})}
		session := playback.NewSession(nil)
		So(session.AttachRecord(context.Background(), el, ready()), ShouldBeNil)
		w := &Watch{Record: ready(), Element: el, Session: session}

		Convey("Wait returns once the player exits", func() {
			close(el.exited)
			So(w.Wait(context.Background()), ShouldBeNil)
		})

		Convey("Closing saves progress and stops the player", func() {
			So(w.Close(), ShouldBeNil)
			So(el.closed, ShouldBeTrue)
			So(session.Snapshot().Mode, ShouldEqual, playback.ModeDetached)

			saved, err := history.Get()
			So(err, ShouldBeNil)
			So(saved["v1"].Position, ShouldEqual, 30)
			So(saved["v1"].WatchedPercentage, ShouldEqual, 25)
		})
	})
}
