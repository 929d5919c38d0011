package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lorelei/raceexport/internal/adapters/bundle"
	"github.com/lorelei/raceexport/internal/adapters/repository"
	"github.com/lorelei/raceexport/internal/app"
	"github.com/lorelei/raceexport/internal/config"
	"github.com/lorelei/raceexport/internal/domain/model"
	"github.com/lorelei/raceexport/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeStore serves canned telemetry without a database.
type fakeStore struct {
	resets    []model.RaceReset
	events    []model.AssignmentEvent
	runners   []model.Runner
	geofences []model.Geofence
	positions []model.PositionPing
	scoring   []model.ScoringRecord
	stats     repository.ResetWindowStats
}

func (f *fakeStore) RaceResets(context.Context) ([]model.RaceReset, error) {
	return f.resets, nil
}

func (f *fakeStore) ResetWindowStats(context.Context, int64, int64) (repository.ResetWindowStats, error) {
	return f.stats, nil
}

func (f *fakeStore) AssignmentEvents(_ context.Context, upTo int64) ([]model.AssignmentEvent, error) {
	var out []model.AssignmentEvent
	for _, ev := range f.events {
		if ev.Timestamp <= upTo {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) Runners(_ context.Context, ids []int64) ([]model.Runner, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Runner
	for _, r := range f.runners {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Geofences(context.Context) ([]model.Geofence, error) {
	return f.geofences, nil
}

func (f *fakeStore) Positions(_ context.Context, nodeIDs []string, start, end int64) ([]model.PositionPing, error) {
	want := make(map[string]bool, len(nodeIDs))
	for _, n := range nodeIDs {
		want[n] = true
	}
	var out []model.PositionPing
	for _, p := range f.positions {
		if want[p.NodeID] && p.GPSTimestamp >= start && p.GPSTimestamp <= end {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ScoringRecords(_ context.Context, ids []int64, excludeDNF bool) ([]model.ScoringRecord, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.ScoringRecord
	for _, r := range f.scoring {
		if !want[r.RunnerID] {
			continue
		}
		if excludeDNF && !r.Finished() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) TotalStages(context.Context) (int, error) {
	n := 0
	for _, g := range f.geofences {
		if g.Type == "stage" {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Close() error { return nil }

func raceStore() *fakeStore {
	return &fakeStore{
		events: []model.AssignmentEvent{
			{RunnerID: 1, NodeID: "nA", Timestamp: 900, Kind: model.Assign},
			{RunnerID: 2, NodeID: "nB", Timestamp: 950, Kind: model.Assign},
		},
		runners: []model.Runner{
			{ID: 1, Name: "Kevin"},
			{ID: 2, Name: "Dan"},
		},
		geofences: []model.Geofence{
			{ID: 1, Type: "start", Sequence: 0, Latitude: 30, Longitude: -99, Radius: 50},
			{ID: 2, Type: "stage", Sequence: 1, Latitude: 30.1, Longitude: -99.1, Radius: 30},
			{ID: 3, Type: "finish", Sequence: 2, Latitude: 30.2, Longitude: -99.2, Radius: 50},
		},
		positions: []model.PositionPing{
			{NodeID: "nA", Latitude: 30.00001, Longitude: -99.00001, GPSTimestamp: 1000},
			{NodeID: "nA", Latitude: 30.00002, Longitude: -99.00002, GPSTimestamp: 1060},
			{NodeID: "nB", Latitude: 30.00003, Longitude: -99.00003, GPSTimestamp: 1000},
		},
		scoring: []model.ScoringRecord{
			{RunnerID: 1, ExitedStart: 1000, EnterFinish: 5000, TotalRunTime: 4000,
				Stages: map[int]model.StageTime{0: {Enter: 2000, Exit: 2100}}},
			{RunnerID: 2, ExitedStart: 1100, Stages: map[int]model.StageTime{}}, // DNF
		},
	}
}

func newExporter(t *testing.T, store repository.Store, opts ...app.Option) (*app.Exporter, string) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	out := t.TempDir()
	base := []app.Option{
		app.WithStore(store),
		app.WithWriter(bundle.NewWriter(out)),
	}
	return app.New(append(base, opts...)...), out
}

func TestExportAll(t *testing.T) {
	Convey("Given a store with one race worth of telemetry", t, func() {
		exporter, out := newExporter(t, raceStore())
		races := []config.Race{
			{Name: "trial", DisplayName: "Trial Race", StartTime: 800, EndTime: 6000},
		}

		Convey("When exporting the batch", func() {
			err := exporter.ExportAll(context.Background(), races)
			So(err, ShouldBeNil)
			dir := filepath.Join(out, "trial")

			Convey("Then the bundle lands on disk", func() {
				for _, name := range []string{
					bundle.GeofencesFile, bundle.RunnersFile, bundle.PositionsFile,
					bundle.ScoringFile, bundle.MetadataFile,
				} {
					_, err := os.Stat(filepath.Join(dir, name))
					So(err, ShouldBeNil)
				}
			})

			Convey("Then runners carry node ids and palette colors", func() {
				data, err := os.ReadFile(filepath.Join(dir, bundle.RunnersFile))
				So(err, ShouldBeNil)
				var runners []bundle.RunnerExport
				So(json.Unmarshal(data, &runners), ShouldBeNil)
				So(runners, ShouldHaveLength, 2)
				So(runners[0].NodeID, ShouldEqual, "nA")
				So(runners[0].Color, ShouldStartWith, "#")
			})

			Convey("Then the window tightens from scoring checkpoints", func() {
				data, err := os.ReadFile(filepath.Join(dir, bundle.MetadataFile))
				So(err, ShouldBeNil)
				var meta bundle.Metadata
				So(json.Unmarshal(data, &meta), ShouldBeNil)
				// min start-exit 1000 - 300, max finish-entry 5000 + 300
				So(meta.StartTime, ShouldEqual, 700)
				So(meta.EndTime, ShouldEqual, 5300)
				So(meta.RunnerCount, ShouldEqual, 2)
				So(meta.TotalStages, ShouldEqual, 1)
				So(meta.ExportID, ShouldEqual, exporter.RunID())
			})

			Convey("Then positions aggregate into frames", func() {
				data, err := os.ReadFile(filepath.Join(dir, bundle.PositionsFile))
				So(err, ShouldBeNil)
				var frames []map[string]any
				So(json.Unmarshal(data, &frames), ShouldBeNil)
				So(frames, ShouldHaveLength, 2) // ts 1000 (two runners) and 1060
			})

			Convey("Then scoring marks the DNF with a zero finish", func() {
				data, err := os.ReadFile(filepath.Join(dir, bundle.ScoringFile))
				So(err, ShouldBeNil)
				var scoring []bundle.ScoringExport
				So(json.Unmarshal(data, &scoring), ShouldBeNil)
				So(scoring, ShouldHaveLength, 2)
				So(scoring[1].EnterFinish, ShouldEqual, 0)
				So(scoring[0].StagesCompleted, ShouldEqual, 1)
			})
		})

		Convey("When exporting twice", func() {
			So(exporter.ExportAll(context.Background(), races), ShouldBeNil)
			first, err := os.ReadFile(filepath.Join(out, "trial", bundle.PositionsFile))
			So(err, ShouldBeNil)
			So(exporter.ExportAll(context.Background(), races), ShouldBeNil)
			second, err := os.ReadFile(filepath.Join(out, "trial", bundle.PositionsFile))
			So(err, ShouldBeNil)

			Convey("Then positions.json is byte-identical", func() {
				So(string(second), ShouldEqual, string(first))
			})
		})
	})

	Convey("Given a race window with no assignments", t, func() {
		exporter, out := newExporter(t, raceStore())
		races := []config.Race{
			{Name: "empty", StartTime: 10, EndTime: 20},
			{Name: "trial", StartTime: 800, EndTime: 6000},
		}

		Convey("When exporting the batch", func() {
			err := exporter.ExportAll(context.Background(), races)

			Convey("Then the empty race is skipped and the batch continues", func() {
				So(err, ShouldBeNil)
				_, statErr := os.Stat(filepath.Join(out, "empty"))
				So(os.IsNotExist(statErr), ShouldBeTrue)
				_, statErr = os.Stat(filepath.Join(out, "trial", bundle.MetadataFile))
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given an empty primary log and a populated backup", t, func() {
		primary := raceStore()
		backup := raceStore()
		primary.events = nil

		exporter, out := newExporter(t, primary, app.WithBackupStore(backup))
		races := []config.Race{{Name: "trial", StartTime: 800, EndTime: 6000}}

		Convey("When exporting", func() {
			err := exporter.ExportAll(context.Background(), races)

			Convey("Then assignments come from the backup database", func() {
				So(err, ShouldBeNil)
				_, statErr := os.Stat(filepath.Join(out, "trial", bundle.RunnersFile))
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given the per-runner interval mode", t, func() {
		store := raceStore()
		// Runner 1's device moves from nA to nB mid-race; nB's pings after
		// the move must attribute to runner 1.
		store.events = []model.AssignmentEvent{
			{RunnerID: 1, NodeID: "nA", Timestamp: 900, Kind: model.Assign},
			{RunnerID: 1, NodeID: "nB", Timestamp: 1030, Kind: model.Assign},
		}
		store.positions = []model.PositionPing{
			{NodeID: "nA", Latitude: 30.1, Longitude: -99.1, GPSTimestamp: 1000},
			{NodeID: "nB", Latitude: 30.2, Longitude: -99.2, GPSTimestamp: 1060},
		}
		exporter, out := newExporter(t, store, app.WithMappingMode(app.ModeIntervals))
		races := []config.Race{{Name: "trial", StartTime: 800, EndTime: 6000}}

		Convey("When exporting", func() {
			So(exporter.ExportAll(context.Background(), races), ShouldBeNil)
			data, err := os.ReadFile(filepath.Join(out, "trial", bundle.PositionsFile))
			So(err, ShouldBeNil)

			var frames []struct {
				T int64 `json:"t"`
				P []struct {
					R int64 `json:"r"`
				} `json:"p"`
			}
			So(json.Unmarshal(data, &frames), ShouldBeNil)

			Convey("Then both nodes' pings attribute to the same runner", func() {
				So(frames, ShouldHaveLength, 2)
				So(frames[0].P[0].R, ShouldEqual, 1)
				So(frames[1].P[0].R, ShouldEqual, 1)
			})
		})
	})
}

func TestListResets(t *testing.T) {
	Convey("Given a store with reset markers", t, func() {
		store := raceStore()
		store.resets = []model.RaceReset{
			{ID: 1, Timestamp: 1000, Description: "season opener"},
			{ID: 2, Timestamp: 2000},
		}
		store.stats = repository.ResetWindowStats{
			PositionCount: 42,
			Nodes:         []string{"nA", "nB"},
			RunnerNumbers: []int64{1, 2},
			GPSMin:        1100,
			GPSMax:        4700,
		}
		exporter, _ := newExporter(t, store)

		Convey("When listing resets", func() {
			var buf bytes.Buffer
			err := exporter.ListResets(context.Background(), &buf)
			So(err, ShouldBeNil)
			report := buf.String()

			Convey("Then each reset is summarized", func() {
				So(report, ShouldContainSubstring, "Found 2 race reset(s)")
				So(report, ShouldContainSubstring, "Reset #1: season opener")
				So(report, ShouldContainSubstring, "Reset #2: No description")
				So(report, ShouldContainSubstring, "Positions: 42")
				So(report, ShouldContainSubstring, "Nodes: 2 - nA, nB")
				So(report, ShouldContainSubstring, "Runners assigned: 2 - [1 2]")
				So(report, ShouldContainSubstring, "GPS Time Range:")
				So(report, ShouldContainSubstring, "(1.0 hours)")
			})
		})
	})

	Convey("Given a store with no resets", t, func() {
		exporter, _ := newExporter(t, raceStore())

		Convey("When listing resets", func() {
			var buf bytes.Buffer
			So(exporter.ListResets(context.Background(), &buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "No race resets found")
		})
	})
}
