package history

import (
	"testing"

	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestHistory(t *testing.T) {
	Convey("Given a ready video", t, func() {
		rec := &video.Record{
			ID:              "v1",
			Title:           "Holiday",
			Status:          video.StatusReady,
			DurationSeconds: lo.ToPtr(200.0),
		}
		So(Remove(rec.ID), ShouldBeNil)

		Convey("When saving progress", func() {
			So(Save(rec, 50, 0), ShouldBeNil)

			Convey("Then the entry is stored with its percentage", func() {
				saved, err := Get()
				So(err, ShouldBeNil)
				So(saved, ShouldContainKey, "v1")
				So(saved["v1"].WatchedPercentage, ShouldEqual, 25)
				So(saved["v1"].Duration, ShouldEqual, 200)
			})

			Convey("Then playback resumes from the saved position", func() {
				pos, err := Resume("v1", 80)
				So(err, ShouldBeNil)
				So(pos, ShouldEqual, 50)
			})

			Convey("And a later, shorter watch keeps the highest percentage", func() {
				So(Save(rec, 10, 0), ShouldBeNil)
				saved, _ := Get()
				So(saved["v1"].WatchedPercentage, ShouldEqual, 25)
				So(saved["v1"].Position, ShouldEqual, 10)
			})

			Convey("And removing it forgets the video", func() {
				So(Remove("v1"), ShouldBeNil)
				saved, _ := Get()
				So(saved, ShouldNotContainKey, "v1")
			})
		})

		Convey("A finished video starts from the beginning", func() {
			So(Save(rec, 190, 0), ShouldBeNil)
			pos, err := Resume("v1", 80)
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, 0)
		})

		Convey("An unknown video starts from the beginning", func() {
			pos, err := Resume("nope", 80)
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, 0)
		})

		Convey("Without any duration the percentage stays zero", func() {
			rec.DurationSeconds = nil
			So(Save(rec, 30, 0), ShouldBeNil)
			saved, _ := Get()
			So(saved["v1"].WatchedPercentage, ShouldEqual, 0)
		})
	})
}
