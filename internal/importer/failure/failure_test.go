package failure_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/scorepipe/internal/importer/failure"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFailureKinds(t *testing.T) {
	Convey("Given one failure of each kind", t, func() {
		cases := []struct {
			f    failure.Failure
			kind failure.Kind
		}{
			{failure.Invalidf("bad %s", "lamp"), failure.KindInvalidScore},
			{&failure.SongOrChartNotFound{Msg: "missing"}, failure.KindSongOrChartNotFound},
			{failure.Ambiguous("Title"), failure.KindAmbiguousTitle},
			{failure.Skipf("beginner"), failure.KindSkipScore},
			{failure.Internalf("desync"), failure.KindInternal},
		}

		Convey("Then each reports its discriminant", func() {
			for _, c := range cases {
				So(c.f.Kind(), ShouldEqual, c.kind)
			}
		})

		Convey("Then messages are formatted", func() {
			So(cases[0].f.Error(), ShouldEqual, "bad lamp")
			So(cases[2].f.(*failure.AmbiguousTitle).Title, ShouldEqual, "Title")
		})
	})
}

func TestAs(t *testing.T) {
	Convey("Given a wrapped failure", t, func() {
		err := fmt.Errorf("convert: %w", failure.Invalidf("nope"))

		Convey("Then As unwraps it", func() {
			f, ok := failure.As(err)
			So(ok, ShouldBeTrue)
			So(f.Kind(), ShouldEqual, failure.KindInvalidScore)
		})
	})

	Convey("Given a plain error", t, func() {
		_, ok := failure.As(errors.New("boom"))

		Convey("Then it is not a failure", func() {
			So(ok, ShouldBeFalse)
		})
	})
}
