package log

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/where"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestSetup(t *testing.T) {
	Convey("Given logging is disabled", t, func() {
		viper.Set(key.LogsWrite, false)
		So(Setup(), ShouldBeNil)

		Convey("WithFields still returns a usable entry", func() {
			So(func() { WithFields(Fields{"video": "v1"}).Info("ignored") }, ShouldNotPanic)
		})
	})

	Convey("Given logging is enabled", t, func() {
		viper.Set(key.LogsWrite, true)
		viper.Set(key.LogsLevel, "debug")
		So(Setup(), ShouldBeNil)

		Reset(func() {
			viper.Set(key.LogsWrite, false)
			_ = Setup()
		})

		Convey("Entries land in the dated log file", func() {
			WithFields(Fields{"video": "v1"}).Info("poll started")

			path := filepath.Join(where.Logs(), time.Now().Format("2006-01-02")+".log")
			data, err := filesystem.API().ReadFile(path)
			So(err, ShouldBeNil)
			So(strings.Contains(string(data), "poll started"), ShouldBeTrue)
			So(strings.Contains(string(data), "video=v1"), ShouldBeTrue)
		})
	})
}
