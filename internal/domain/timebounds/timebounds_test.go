package timebounds_test

import (
	"testing"

	"github.com/lorelei/raceexport/internal/domain/model"
	"github.com/lorelei/raceexport/internal/domain/timebounds"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalculate(t *testing.T) {
	Convey("Given finishers and a DNF", t, func() {
		records := []model.ScoringRecord{
			{RunnerID: 1, ExitedStart: 1000, EnterFinish: 5000},
			{RunnerID: 2, ExitedStart: 1100, EnterFinish: 0}, // DNF
			{RunnerID: 3, ExitedStart: 1200, EnterFinish: 5200},
		}

		b := timebounds.Calculate(records)

		Convey("Then the start is the earliest start-exit minus the buffer", func() {
			So(b.StartValid, ShouldBeTrue)
			So(b.Start, ShouldEqual, 700)
		})

		Convey("Then the end is the latest finish-entry plus the buffer", func() {
			So(b.EndValid, ShouldBeTrue)
			So(b.End, ShouldEqual, 5500)
		})
	})

	Convey("Given a DNF runner who started earliest", t, func() {
		records := []model.ScoringRecord{
			{RunnerID: 1, ExitedStart: 900, EnterFinish: 0},
			{RunnerID: 2, ExitedStart: 1000, EnterFinish: 4000},
		}

		b := timebounds.Calculate(records)

		Convey("Then the DNF still anchors the start", func() {
			So(b.Start, ShouldEqual, 600)
		})

		Convey("Then the DNF never contributes to the end", func() {
			So(b.End, ShouldEqual, 4300)
		})
	})

	Convey("Given records with no start-exit at all", t, func() {
		records := []model.ScoringRecord{
			{RunnerID: 1, ExitedStart: 0, EnterFinish: 0},
		}
		b := timebounds.Calculate(records)

		Convey("Then the start is absent, not zero", func() {
			So(b.StartValid, ShouldBeFalse)
			So(b.EndValid, ShouldBeFalse)
		})
	})

	Convey("Given nobody finished", t, func() {
		records := []model.ScoringRecord{
			{RunnerID: 1, ExitedStart: 2000, EnterFinish: 0},
			{RunnerID: 2, ExitedStart: 2100, EnterFinish: 0},
		}
		b := timebounds.Calculate(records)

		Convey("Then only the start side is defined", func() {
			So(b.StartValid, ShouldBeTrue)
			So(b.Start, ShouldEqual, 1700)
			So(b.EndValid, ShouldBeFalse)
		})
	})

	Convey("Given no records", t, func() {
		b := timebounds.Calculate(nil)
		So(b.StartValid, ShouldBeFalse)
		So(b.EndValid, ShouldBeFalse)
	})

	Convey("Given a custom buffer", t, func() {
		records := []model.ScoringRecord{
			{RunnerID: 1, ExitedStart: 1000, EnterFinish: 5000},
		}
		b := timebounds.CalculateWithBuffer(records, 60)
		So(b.Start, ShouldEqual, 940)
		So(b.End, ShouldEqual, 5060)
	})
}
