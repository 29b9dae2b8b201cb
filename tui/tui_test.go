package tui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/config"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/reconcile"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
	lo.Must0(config.Setup())
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

type fakeService struct {
	deleted  atomic.Value
	uploaded atomic.Int32
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/videos":
		_ = json.NewEncoder(w).Encode(video.Page{
			Videos: []video.Record{
				{ID: "a", Title: "Holiday", Status: video.StatusReady, OriginalSize: 2048},
				{ID: "b", Title: "Birthday", Status: video.StatusProcessing},
			},
			Total: 2,
		})
	case r.Method == http.MethodGet && r.URL.Path == "/api/videos/b/status":
		_, _ = io.WriteString(w, `{"status":"processing"}`)
	case r.Method == http.MethodDelete:
		f.deleted.Store(strings.TrimPrefix(r.URL.Path, "/api/videos/"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/api/videos":
		_, _ = io.Copy(io.Discard, r.Body)
		f.uploaded.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"c","title":"clip","status":"pending"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestFuzzyFilter(t *testing.T) {
	Convey("Library filtering is fuzzy and case-insensitive", t, func() {
		targets := []string{"Holiday beach.mp4", "Birthday party.mov", "Conference talk.mkv"}

		ranks := fuzzyFilter("bday", targets)
		So(ranks, ShouldHaveLength, 1)
		So(ranks[0].Index, ShouldEqual, 1)

		So(fuzzyFilter("HOLI", targets)[0].Index, ShouldEqual, 0)
		So(fuzzyFilter("xyz", targets), ShouldBeEmpty)
	})
}

func TestItems(t *testing.T) {
	Convey("Given a record item", t, func() {
		item := &listItem{internal: &video.Record{
			Title:            "Holiday",
			OriginalFilename: "beach.mp4",
			OriginalSize:     1536,
			DurationSeconds:  lo.ToPtr(75.0),
			Status:           video.StatusReady,
		}}

		So(item.Title(), ShouldContainSubstring, "Holiday")
		So(item.FilterValue(), ShouldEqual, "Holiday beach.mp4")
		So(item.Description(), ShouldContainSubstring, "1.5 KB")
		So(item.Description(), ShouldContainSubstring, "1:15")
	})

	Convey("Given the quality levels of a session", t, func() {
		st := playback.State{
			Mode: playback.ModeAdaptive,
			Levels: []playback.Level{
				{Index: 0, Height: 360, Bitrate: 800_000},
				{Index: 1, Height: 720, Bitrate: 2_800_000},
			},
			CurrentLevel: 1,
		}

		Convey("Auto comes first and the pinned level is marked", func() {
			items := levelItems(st, 0)
			So(items, ShouldHaveLength, 3)
			So(items[0].FilterValue(), ShouldEqual, "Auto")
			So(items[1].(*listItem).marked, ShouldBeTrue)
			So(items[2].(*listItem).marked, ShouldBeFalse)
		})

		Convey("The label names the decoded level", func() {
			So(levelLabel(st, playback.AutoLevel), ShouldEqual, "Auto (720p (2800kbps))")
			So(levelLabel(st, 1), ShouldEqual, "720p (2800kbps)")
			So(levelLabel(playback.State{CurrentLevel: playback.AutoLevel}, playback.AutoLevel), ShouldEqual, "Auto (unknown)")
		})
	})
}

func TestKeymap(t *testing.T) {
	Convey("Help follows the active state", t, func() {
		k := newStatefulKeymap()

		k.setState(confirmState)
		So(k.ShortHelp(), ShouldHaveLength, 2)

		k.setState(watchState)
		So(lo.Map(k.ShortHelp(), func(b key.Binding, _ int) string { return b.Help().Desc }), ShouldContain, "quality")
	})
}

func TestBubble(t *testing.T) {
	Convey("Given the library of a service", t, func() {
		svc := &fakeService{}
		srv := httptest.NewServer(svc)
		client, err := api.New(srv.URL, srv.Client())
		So(err, ShouldBeNil)

		b := newBubble(context.Background(), client, &Options{})
		Reset(func() {
			b.release()
			srv.Close()
		})

		So(b.Init(), ShouldNotBeNil)
		So(b.state, ShouldEqual, loadingState)

		b.Update(b.loadLibrary()())
		So(b.state, ShouldEqual, libraryState)
		So(b.libraryC.Items(), ShouldHaveLength, 2)
		So(b.listPoller, ShouldNotBeNil)

		Convey("Deleting asks for confirmation", func() {
			b.Update(keyPress("d"))
			So(b.state, ShouldEqual, confirmState)
			So(b.selected.ID, ShouldEqual, "a")

			Convey("And declining returns to the library", func() {
				b.Update(keyPress("n"))
				So(b.state, ShouldEqual, libraryState)
				So(svc.deleted.Load(), ShouldBeNil)
			})

			Convey("And the service is asked to remove the video", func() {
				msg := b.deleteVideo(b.selected)()
				So(msg, ShouldHaveSameTypeAs, deletedMsg{})
				So(svc.deleted.Load(), ShouldEqual, "a")
			})
		})

		Convey("Opening a processing video follows its status", func() {
			b.libraryC.Select(1)
			b.Update(keyPress("enter"))
			So(b.state, ShouldEqual, watchState)
			So(b.poller, ShouldNotBeNil)
			So(b.selected.ID, ShouldEqual, "b")
			So(b.View(), ShouldContainSubstring, "waiting for processing to finish")

			Convey("Quality selection is refused before playback starts", func() {
				b.Update(keyPress("s"))
				So(b.state, ShouldEqual, watchState)
			})

			Convey("Going back stops the poller", func() {
				b.Update(keyPress("esc"))
				So(b.state, ShouldEqual, libraryState)
				So(b.poller, ShouldBeNil)
			})

			Convey("Results of a replaced poller are dropped", func() {
				stale := reconcile.Watch(context.Background(), client, "b", video.StatusReady, reconcile.Options{})
				b.Update(statusMsg{poller: stale, update: reconcile.Update{Status: video.StatusProjection{Status: video.StatusFailed}}})
				So(b.selected.Status, ShouldEqual, video.StatusProcessing)
			})
		})

		Convey("Uploading a file", func() {
			b.Update(keyPress("u"))
			So(b.state, ShouldEqual, uploadState)

			Convey("A missing file is reported and the view stays open", func() {
				msg := b.startUpload("/missing.mp4")()
				_, notify := b.Update(msg)
				So(notify, ShouldNotBeNil)
				b.Update(notify())
				So(b.uploading, ShouldBeFalse)
				So(b.state, ShouldEqual, uploadState)
				So(b.notifier.Current(), ShouldNotBeEmpty)
				So(svc.uploaded.Load(), ShouldEqual, 0)
			})

			Convey("A video is transferred and the library reloaded", func() {
				So(filesystem.API().WriteFile("/clip.mp4", []byte(strings.Repeat("frame", 4096)), 0o644), ShouldBeNil)

				msg := b.startUpload("/clip.mp4")()
				for {
					p, ok := msg.(uploadProgressMsg)
					if !ok {
						break
					}
					b.Update(p)
					So(b.uploadState.Percent, ShouldBeBetweenOrEqual, 0, 100)
					msg = b.waitForUpload(p.result)()
				}

				done, ok := msg.(uploadedMsg)
				So(ok, ShouldBeTrue)
				So(done.err, ShouldBeNil)
				So(done.record.ID, ShouldEqual, "c")

				b.Update(done)
				So(b.uploading, ShouldBeFalse)
				So(b.state, ShouldEqual, libraryState)
				So(svc.uploaded.Load(), ShouldEqual, 1)
			})
		})
	})
}
