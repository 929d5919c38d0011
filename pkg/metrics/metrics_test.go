package metrics

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := NewManager()

		Convey("When recording a run's activity", func() {
			m.RecordExport(1.25)
			m.RecordSkip()
			m.RecordPositions(100)
			m.RecordFrames(40)
			m.RecordDropped("unmapped", 3)
			m.RecordDropped("bad_fix", 0) // no-op
			m.RecordResets(2)

			Convey("Then the textfile carries every series", func() {
				path := filepath.Join(t.TempDir(), "metrics.prom")
				So(m.WriteTextfile(path), ShouldBeNil)

				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				text := string(data)
				So(text, ShouldContainSubstring, "raceexport_races_exported_total 1")
				So(text, ShouldContainSubstring, "raceexport_races_skipped_total 1")
				So(text, ShouldContainSubstring, "raceexport_positions_read_total 100")
				So(text, ShouldContainSubstring, "raceexport_frames_written_total 40")
				So(text, ShouldContainSubstring, `raceexport_pings_dropped_total{reason="unmapped"} 3`)
				So(text, ShouldNotContainSubstring, `reason="bad_fix"`)
				So(text, ShouldContainSubstring, "raceexport_export_duration_seconds_count 1")
			})
		})

		Convey("When overriding the namespace", func() {
			custom := NewManager(WithNamespace("lorelei"))
			custom.RecordExport(0.5)

			path := filepath.Join(t.TempDir(), "metrics.prom")
			So(custom.WriteTextfile(path), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "lorelei_races_exported_total")
		})
	})
}
