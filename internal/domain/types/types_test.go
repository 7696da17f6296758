package types_test

import (
	"testing"

	types "github.com/okian/scorepipe/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGPT(t *testing.T) {
	Convey("Given a game and playtype", t, func() {
		gpt := types.NewGPT(types.GameIIDX, types.PlaytypeSP)

		Convey("Then the key joins them with a colon", func() {
			So(string(gpt), ShouldEqual, "iidx:SP")
		})

		Convey("When splitting the key", func() {
			game, pt, err := gpt.Split()

			Convey("Then both halves come back", func() {
				So(err, ShouldBeNil)
				So(game, ShouldEqual, types.GameIIDX)
				So(pt, ShouldEqual, types.PlaytypeSP)
			})
		})
	})

	Convey("Given a malformed key", t, func() {
		for _, raw := range []string{"", "iidx", "iidx:", ":SP"} {
			_, _, err := types.GPT(raw).Split()
			So(err, ShouldNotBeNil)
		}
	})
}
