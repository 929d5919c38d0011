package model_test

import (
	"testing"

	"github.com/lorelei/raceexport/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestIntervalOverlaps(t *testing.T) {
	Convey("Given an interval [100, 200]", t, func() {
		iv := model.Interval{NodeID: "nA", RunnerID: 1, Start: 100, End: 200}

		Convey("Then it overlaps windows that touch it", func() {
			So(iv.Overlaps(150, 250), ShouldBeTrue)
			So(iv.Overlaps(50, 100), ShouldBeTrue)
			So(iv.Overlaps(200, 300), ShouldBeTrue)
		})

		Convey("Then it misses disjoint windows", func() {
			So(iv.Overlaps(210, 300), ShouldBeFalse)
			So(iv.Overlaps(10, 99), ShouldBeFalse)
		})
	})

	Convey("Given a still-open interval", t, func() {
		iv := model.Interval{Start: 100, End: model.Open}
		So(iv.Overlaps(1<<40, 1<<41), ShouldBeTrue)
	})
}

func TestScoringRecordFlags(t *testing.T) {
	Convey("Given scoring records", t, func() {
		Convey("Then a finisher reports both flags", func() {
			r := model.ScoringRecord{ExitedStart: 1000, EnterFinish: 5000}
			So(r.Started(), ShouldBeTrue)
			So(r.Finished(), ShouldBeTrue)
		})

		Convey("Then a DNF started but never finished", func() {
			r := model.ScoringRecord{ExitedStart: 1000}
			So(r.Started(), ShouldBeTrue)
			So(r.Finished(), ShouldBeFalse)
		})

		Convey("Then a no-show reports neither", func() {
			So(model.ScoringRecord{}.Started(), ShouldBeFalse)
			So(model.ScoringRecord{}.Finished(), ShouldBeFalse)
		})
	})
}
