package palette_test

import (
	"testing"

	"github.com/lorelei/raceexport/internal/domain/palette"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHashColor(t *testing.T) {
	Convey("Given the default palette", t, func() {
		p := palette.Default()

		Convey("Then it carries at least 8 entries", func() {
			So(len(p), ShouldBeGreaterThanOrEqualTo, 8)
		})

		Convey("When hashing known node ids", func() {
			// Indices match the historical md5-based map coloring.
			So(p.HashColor("node-1").Name, ShouldEqual, "brown")
			So(p.HashColor("node-2").Name, ShouldEqual, "gray")
			So(p.HashColor("alpha").Hex, ShouldEqual, "#377eb8")
		})

		Convey("Then the same id always gets the same color", func() {
			first := p.HashColor("!NODE_7")
			for i := 0; i < 10; i++ {
				So(p.HashColor("!NODE_7"), ShouldResemble, first)
			}
		})
	})
}

func TestSequential(t *testing.T) {
	Convey("Given a sequential assigner", t, func() {
		p := palette.Default()
		seq := p.Sequential()

		Convey("Then the first len(palette) colors are all distinct", func() {
			seen := make(map[string]bool)
			for i := 0; i < len(p); i++ {
				c := seq.Next()
				So(seen[c.Hex], ShouldBeFalse)
				seen[c.Hex] = true
			}
		})

		Convey("And overflow wraps via modulo instead of failing", func() {
			for i := 0; i < len(p); i++ {
				seq.Next()
			}
			So(seq.Next(), ShouldResemble, p[0])
		})
	})
}

func TestFallback(t *testing.T) {
	Convey("Given the default palette", t, func() {
		Convey("Then the fallback is the neutral gray", func() {
			So(palette.Default().Fallback().Hex, ShouldEqual, "#999999")
		})
	})
}
