// Package app wires the resolver, aggregator, and adapters into the
// one-shot export service behind the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lorelei/raceexport/internal/adapters/bundle"
	"github.com/lorelei/raceexport/internal/adapters/repository"
	"github.com/lorelei/raceexport/internal/config"
	"github.com/lorelei/raceexport/internal/domain/assignment"
	"github.com/lorelei/raceexport/internal/domain/model"
	"github.com/lorelei/raceexport/internal/domain/palette"
	"github.com/lorelei/raceexport/internal/domain/replay"
	"github.com/lorelei/raceexport/internal/domain/timebounds"
	"github.com/lorelei/raceexport/pkg/logger"
	"github.com/lorelei/raceexport/pkg/metrics"
)

// MappingMode selects which resolved-mapping strategy attributes pings.
type MappingMode string

// Supported mapping modes.
const (
	// ModeOverlap takes, per node, the earliest binding overlapping the
	// race window. The default, matching the published exports.
	ModeOverlap MappingMode = "overlap"
	// ModeSnapshot uses the instantaneous mapping at the race end.
	ModeSnapshot MappingMode = "snapshot"
	// ModeIntervals queries each runner's own binding windows, for races
	// where devices were shuffled among nodes mid-race.
	ModeIntervals MappingMode = "intervals"
)

// Exporter runs race exports and reset listings against a read-only store.
type Exporter struct {
	store       repository.Store
	backup      repository.Store // optional fallback for assignment events
	writer      *bundle.Writer
	colors      palette.Palette
	mode        MappingMode
	buffer      int64
	parallelism int
	log         logger.Logger
	metrics     *metrics.Manager
	runID       string
}

// Option applies a configuration option to the Exporter.
type Option func(*Exporter)

// WithStore sets the primary telemetry store.
func WithStore(s repository.Store) Option {
	return func(e *Exporter) { e.store = s }
}

// WithBackupStore sets a fallback store consulted when the primary log
// has no assignment events for a race window.
func WithBackupStore(s repository.Store) Option {
	return func(e *Exporter) { e.backup = s }
}

// WithWriter sets the bundle writer.
func WithWriter(w *bundle.Writer) Option {
	return func(e *Exporter) { e.writer = w }
}

// WithPalette overrides the color palette.
func WithPalette(p palette.Palette) Option {
	return func(e *Exporter) {
		if len(p) > 0 {
			e.colors = p
		}
	}
}

// WithMappingMode selects the attribution strategy.
func WithMappingMode(m MappingMode) Option {
	return func(e *Exporter) {
		if m != "" {
			e.mode = m
		}
	}
}

// WithBufferSeconds overrides the padding applied to derived windows.
func WithBufferSeconds(n int64) Option {
	return func(e *Exporter) {
		if n >= 0 {
			e.buffer = n
		}
	}
}

// WithParallelism bounds concurrent race exports.
func WithParallelism(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Exporter) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New constructs an Exporter. A store and writer must be provided via
// options before calling ExportAll or ListResets.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		colors:      palette.Default(),
		mode:        ModeOverlap,
		buffer:      timebounds.BufferSeconds,
		parallelism: 1,
		metrics:     metrics.NewManager(),
		runID:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get()
	}
	return e
}

// RunID identifies this export run in logs and metadata.
func (e *Exporter) RunID() string { return e.runID }

// Metrics exposes the run's metrics manager for final textfile output.
func (e *Exporter) Metrics() *metrics.Manager { return e.metrics }

// ExportAll runs the configured batch. Races export in parallel; a race
// with no qualifying data is reported and skipped without failing the
// batch. Only infrastructure failures (queries, writes) abort a race.
func (e *Exporter) ExportAll(ctx context.Context, races []config.Race) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, race := range races {
		race := race
		g.Go(func() error {
			return e.exportRace(gctx, race)
		})
	}
	return g.Wait()
}

// exportRace materializes one race's bundle.
func (e *Exporter) exportRace(ctx context.Context, race config.Race) error {
	log := e.log.Named("export")
	started := time.Now()

	log.Info(ctx, "exporting race",
		logger.String("race", race.Name),
		logger.String("run_id", e.runID),
		logger.Int64("start", race.StartTime),
		logger.Int64("end", race.EndTime))

	events, err := e.assignmentEvents(ctx, race.EndTime)
	if err != nil {
		return err
	}

	snap := assignment.OverlapWindow(events, race.StartTime, race.EndTime)
	if len(snap.RunnerToNode) == 0 {
		log.Warn(ctx, "no runners assigned in race window; skipping",
			logger.String("race", race.Name))
		e.metrics.RecordSkip()
		return nil
	}

	mapping := e.buildMapping(events, snap, race)
	runnerIDs := mapping.Runners()

	runners, err := e.store.Runners(ctx, runnerIDs)
	if err != nil {
		return err
	}
	if len(runners) == 0 {
		log.Warn(ctx, "no registered runners for race; skipping",
			logger.String("race", race.Name))
		e.metrics.RecordSkip()
		return nil
	}

	records, err := e.store.ScoringRecords(ctx, runnerIDs, false)
	if err != nil {
		return err
	}

	// Tighten the window from timing checkpoints when available.
	start, end := race.StartTime, race.EndTime
	bounds := timebounds.CalculateWithBuffer(records, e.buffer)
	if bounds.StartValid {
		start = bounds.Start
	}
	if bounds.EndValid {
		end = bounds.End
	}

	geofences, err := e.store.Geofences(ctx)
	if err != nil {
		return err
	}
	totalStages, err := e.store.TotalStages(ctx)
	if err != nil {
		return err
	}

	frames, stats, err := e.collectFrames(ctx, mapping, start, end)
	if err != nil {
		return err
	}
	e.metrics.RecordFrames(len(frames))
	e.metrics.RecordDropped("unmapped", stats.Unmapped)
	e.metrics.RecordDropped("bad_fix", stats.BadFix)
	e.metrics.RecordDropped("duplicate", stats.Duplicates)

	b := bundle.Bundle{
		Geofences: geofences,
		Runners:   e.runnerExports(runners, snap),
		Frames:    frames,
		Scoring:   scoringExports(records, totalStages),
		Meta: bundle.NewMetadata(
			displayName(race), start, end,
			len(runners), len(frames), totalStages, e.runID,
		),
	}
	if err := e.writer.Write(race.Name, b); err != nil {
		return err
	}

	e.metrics.RecordExport(time.Since(started).Seconds())
	log.Info(ctx, "race exported",
		logger.String("race", race.Name),
		logger.Int("runners", len(runners)),
		logger.Int("frames", len(frames)),
		logger.Int("dropped", stats.Unmapped+stats.BadFix+stats.Duplicates))
	return nil
}

// assignmentEvents reads the log from the primary store, falling back to
// the backup database when the primary holds nothing for the window.
func (e *Exporter) assignmentEvents(ctx context.Context, upTo int64) ([]model.AssignmentEvent, error) {
	events, err := e.store.AssignmentEvents(ctx, upTo)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 && e.backup != nil {
		e.log.Info(ctx, "primary log empty; reading assignments from backup database")
		return e.backup.AssignmentEvents(ctx, upTo)
	}
	return events, nil
}

// buildMapping constructs the configured mapping strategy.
func (e *Exporter) buildMapping(events []model.AssignmentEvent, snap assignment.Snapshot, race config.Race) replay.Mapping {
	switch e.mode {
	case ModeSnapshot:
		return replay.NewSnapshotMapping(assignment.SnapshotAt(events, race.EndTime))
	case ModeIntervals:
		return replay.NewIntervalMapping(assignment.RunnerIntervals(events, race.StartTime, race.EndTime))
	default:
		return replay.NewOverlapMapping(snap)
	}
}

// collectFrames queries positions and aggregates them. Global-window
// strategies run one query over all mapped nodes; the interval strategy
// queries each runner's own binding window.
func (e *Exporter) collectFrames(ctx context.Context, m replay.Mapping, start, end int64) ([]replay.Frame, replay.Stats, error) {
	var pings []model.PositionPing

	perRunner := false
	if runners := m.Runners(); len(runners) > 0 {
		_, _, perRunner = m.WindowFor(runners[0])
	}

	if perRunner {
		for _, runnerID := range m.Runners() {
			rs, re, ok := m.WindowFor(runnerID)
			if !ok {
				continue
			}
			if rs < start {
				rs = start
			}
			if re > end {
				re = end
			}
			p, err := e.store.Positions(ctx, m.Nodes(), rs, re)
			if err != nil {
				return nil, replay.Stats{}, err
			}
			pings = append(pings, p...)
		}
	} else {
		p, err := e.store.Positions(ctx, m.Nodes(), start, end)
		if err != nil {
			return nil, replay.Stats{}, err
		}
		pings = p
	}

	e.metrics.RecordPositions(len(pings))
	frames, stats := replay.Aggregate(pings, m)
	return frames, stats, nil
}

// runnerExports pairs registry rows with their node and display color.
// Colors hash on the node id so they stay stable across runs.
func (e *Exporter) runnerExports(runners []model.Runner, snap assignment.Snapshot) []bundle.RunnerExport {
	out := make([]bundle.RunnerExport, 0, len(runners))
	for _, r := range runners {
		nodeID := snap.RunnerToNode[r.ID]
		color := e.colors.Fallback()
		if nodeID != "" {
			color = e.colors.HashColor(nodeID)
		}
		out = append(out, bundle.RunnerExport{
			ID:     r.ID,
			Name:   r.Name,
			NodeID: nodeID,
			Color:  color.Hex,
		})
	}
	return out
}

// scoringExports shapes scoring records for scoring.json.
func scoringExports(records []model.ScoringRecord, totalStages int) []bundle.ScoringExport {
	out := make([]bundle.ScoringExport, 0, len(records))
	for _, r := range records {
		completed := 0
		for _, st := range r.Stages {
			if st.Exit > 0 {
				completed++
			}
		}
		out = append(out, bundle.ScoringExport{
			RunnerID:        r.RunnerID,
			ExitedStart:     r.ExitedStart,
			EnterFinish:     r.EnterFinish,
			TotalRunTime:    r.TotalRunTime,
			StagesCompleted: completed,
			TotalStages:     totalStages,
			StageTimestamps: r.Stages,
		})
	}
	return out
}

func displayName(race config.Race) string {
	if race.DisplayName != "" {
		return race.DisplayName
	}
	return race.Name
}

// ListResets writes the human-facing reset report to w: each reset marker
// with position counts, distinct nodes, assigned runners, and the GPS time
// span until the next reset.
func (e *Exporter) ListResets(ctx context.Context, w io.Writer) error {
	resets, err := e.store.RaceResets(ctx)
	if err != nil {
		return err
	}
	if len(resets) == 0 {
		fmt.Fprintln(w, "No race resets found in database.")
		return nil
	}
	e.metrics.RecordResets(len(resets))

	fmt.Fprintf(w, "Found %d race reset(s):\n\n", len(resets))
	for i, reset := range resets {
		var windowEnd int64
		if i+1 < len(resets) {
			windowEnd = resets[i+1].Timestamp
		}
		stats, err := e.store.ResetWindowStats(ctx, reset.Timestamp, windowEnd)
		if err != nil {
			return err
		}

		desc := reset.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(w, "Reset #%d: %s\n", reset.ID, desc)
		fmt.Fprintf(w, "  Timestamp: %d (%s)\n", reset.Timestamp,
			time.Unix(reset.Timestamp, 0).Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  Positions: %d\n", stats.PositionCount)
		fmt.Fprintf(w, "  Nodes: %d - %s\n", len(stats.Nodes), nodeSummary(stats.Nodes))
		fmt.Fprintf(w, "  Runners assigned: %d - %v\n", len(stats.RunnerNumbers), stats.RunnerNumbers)
		if stats.GPSMin > 0 && stats.GPSMax > 0 {
			hours := float64(stats.GPSMax-stats.GPSMin) / 3600
			fmt.Fprintf(w, "  GPS Time Range: %s to %s (%.1f hours)\n",
				time.Unix(stats.GPSMin, 0).Format("2006-01-02 15:04"),
				time.Unix(stats.GPSMax, 0).Format("2006-01-02 15:04"),
				hours)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// nodeSummary truncates long node lists the way the old report did.
func nodeSummary(nodes []string) string {
	if len(nodes) <= 5 {
		return strings.Join(nodes, ", ")
	}
	return strings.Join(nodes[:5], ", ") + "..."
}
