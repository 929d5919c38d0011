// Package bundle materializes one race's export into static JSON files
// consumed by the read-only web front end.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lorelei/raceexport/internal/domain/model"
	"github.com/lorelei/raceexport/internal/domain/replay"
)

// File names inside a race directory. Each run fully overwrites them.
const (
	GeofencesFile = "geofences.json"
	RunnersFile   = "runners.json"
	PositionsFile = "positions.json"
	ScoringFile   = "scoring.json"
	MetadataFile  = "metadata.json"
)

// RunnerExport is one row of runners.json.
type RunnerExport struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	NodeID string `json:"node_id"`
	Color  string `json:"color"`
}

// ScoringExport is one row of scoring.json. Zero timestamps serialize as 0
// so the front end can distinguish "never reached" without null handling.
type ScoringExport struct {
	RunnerID        int64                   `json:"runner_id"`
	ExitedStart     int64                   `json:"exited_start"`
	EnterFinish     int64                   `json:"enter_finish"`
	TotalRunTime    int64                   `json:"total_run_time"`
	StagesCompleted int                     `json:"stages_completed"`
	TotalStages     int                     `json:"total_stages"`
	StageTimestamps map[int]model.StageTime `json:"stage_timestamps"`
}

// Metadata is the metadata.json document.
type Metadata struct {
	Name           string `json:"name"`
	StartTime      int64  `json:"startTime"`
	EndTime        int64  `json:"endTime"`
	RunnerCount    int    `json:"runnerCount"`
	PositionFrames int    `json:"positionFrames"`
	TotalStages    int    `json:"totalStages"`
	ExportedAt     string `json:"exportedAt"`
	ExportID       string `json:"exportId"`
}

// Bundle is the full artifact set for one race.
type Bundle struct {
	Geofences []model.Geofence
	Runners   []RunnerExport
	Frames    []replay.Frame
	Scoring   []ScoringExport
	Meta      Metadata
}

// Writer writes bundles under a root output directory, one subdirectory
// per race name (slashes in the name create nested directories).
type Writer struct {
	root string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Write materializes the bundle into <root>/<raceName>/. Files are
// overwritten individually; a failed run leaves earlier files in place
// and re-running is safe.
func (w *Writer) Write(raceName string, b Bundle) error {
	dir := filepath.Join(w.root, filepath.FromSlash(raceName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	// Arrays stay non-null in JSON even when empty.
	if b.Geofences == nil {
		b.Geofences = []model.Geofence{}
	}
	if b.Runners == nil {
		b.Runners = []RunnerExport{}
	}
	if b.Frames == nil {
		b.Frames = []replay.Frame{}
	}
	if b.Scoring == nil {
		b.Scoring = []ScoringExport{}
	}

	if err := w.writePretty(dir, GeofencesFile, b.Geofences); err != nil {
		return err
	}
	if err := w.writePretty(dir, RunnersFile, b.Runners); err != nil {
		return err
	}
	// positions.json is size-sensitive: compact encoding, no whitespace.
	if err := w.writeCompact(dir, PositionsFile, b.Frames); err != nil {
		return err
	}
	if err := w.writePretty(dir, ScoringFile, b.Scoring); err != nil {
		return err
	}
	return w.writePretty(dir, MetadataFile, b.Meta)
}

func (w *Writer) writePretty(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return writeFile(dir, name, append(data, '\n'))
}

func (w *Writer) writeCompact(dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return writeFile(dir, name, data)
}

func writeFile(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// NewMetadata stamps a metadata document with the current time and the
// run's id.
func NewMetadata(name string, start, end int64, runnerCount, frames, totalStages int, exportID string) Metadata {
	return Metadata{
		Name:           name,
		StartTime:      start,
		EndTime:        end,
		RunnerCount:    runnerCount,
		PositionFrames: frames,
		TotalStages:    totalStages,
		ExportedAt:     time.Now().Format(time.RFC3339),
		ExportID:       exportID,
	}
}
