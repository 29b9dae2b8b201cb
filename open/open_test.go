package open

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCommand(t *testing.T) {
	Convey("The handler depends on the platform", t, func() {
		cmd, ok := command("linux", "https://cdn.example.com/v/master.m3u8")
		So(ok, ShouldBeTrue)
		So(cmd.Args, ShouldResemble, []string{"xdg-open", "https://cdn.example.com/v/master.m3u8"})

		cmd, ok = command("darwin", "https://cdn.example.com/v/thumb.jpg")
		So(ok, ShouldBeTrue)
		So(cmd.Args[0], ShouldEqual, "open")

		_, ok = command("plan9", "https://example.com")
		So(ok, ShouldBeFalse)
	})
}
