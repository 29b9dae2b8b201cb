package filesystem

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestApi(t *testing.T) {
	Convey("Filesystem API", t, func() {
		Convey("Should default to OsFs", func() {
			SetOsFs()
			fs := API()
			So(fs, ShouldNotBeNil)
			So(fs.Name(), ShouldEqual, "OsFs")
		})

		Convey("Should switch to MemMapFs", func() {
			SetMemMapFs()
			fs := API()
			So(fs, ShouldNotBeNil)
			So(fs.Name(), ShouldEqual, "MemMapFS")
		})
	})
}

func TestOpenUpload(t *testing.T) {
	Convey("Given an in-memory filesystem", t, func() {
		SetMemMapFs()
		So(API().WriteFile("/clips/intro.mp4", []byte("not really a video"), 0o644), ShouldBeNil)

		Convey("The media type is resolved from the extension", func() {
			u, err := OpenUpload("/clips/intro.mp4")
			So(err, ShouldBeNil)
			defer u.Close()

			So(u.Name, ShouldEqual, "intro.mp4")
			So(u.Size, ShouldEqual, 18)
			So(u.MediaType, ShouldEqual, "video/mp4")
		})

		Convey("Content sniffing is used when the extension is unknown", func() {
			So(API().WriteFile("/clips/notes", []byte("plain words"), 0o644), ShouldBeNil)
			u, err := OpenUpload("/clips/notes")
			So(err, ShouldBeNil)
			defer u.Close()

			So(u.MediaType, ShouldStartWith, "text/plain")
		})

		Convey("Directories are rejected", func() {
			_, err := OpenUpload("/clips")
			So(err, ShouldNotBeNil)
		})
	})
}
