package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lorelei/raceexport/internal/domain/model"
)

// SQLiteStore reads race telemetry from the tracker's SQLite database
// via libSQL. All access is read-only.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open stats the database file, opens it, and configures the connection
// for concurrent readers. A missing file is a configuration error the
// caller reports to the operator; it never opens an empty database.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// libSQL rejects Exec for PRAGMAs that return rows. Use QueryContext
	// and drain rows to handle both kinds uniformly.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA query_only=ON",
	}
	for _, p := range pragmas {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
		rows.Close()
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an existing connection, mainly for tests.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// RaceResets returns all reset markers, ascending by reset timestamp.
func (s *SQLiteStore) RaceResets(ctx context.Context) ([]model.RaceReset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reset_timestamp, COALESCE(description, '')
		FROM race_reset
		ORDER BY reset_timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: race resets: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var resets []model.RaceReset
	for rows.Next() {
		var r model.RaceReset
		var ts float64
		if err := rows.Scan(&r.ID, &ts, &r.Description); err != nil {
			return nil, fmt.Errorf("%w: race resets: %v", ErrQueryFailed, err)
		}
		r.Timestamp = int64(ts)
		resets = append(resets, r)
	}
	return resets, rows.Err()
}

// ResetWindowStats summarizes the telemetry recorded in [start, end).
// end == 0 means the window is open-ended.
func (s *SQLiteStore) ResetWindowStats(ctx context.Context, start, end int64) (ResetWindowStats, error) {
	var stats ResetWindowStats

	window := "timestamp >= ?"
	args := []any{start}
	if end > 0 {
		window += " AND timestamp < ?"
		args = append(args, end)
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM position WHERE "+window, args...,
	).Scan(&stats.PositionCount)
	if err != nil {
		return stats, fmt.Errorf("%w: position count: %v", ErrQueryFailed, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT from_id FROM position WHERE "+window+" ORDER BY from_id", args...,
	)
	if err != nil {
		return stats, fmt.Errorf("%w: distinct nodes: %v", ErrQueryFailed, err)
	}
	for rows.Next() {
		var node string
		if err := rows.Scan(&node); err != nil {
			rows.Close()
			return stats, fmt.Errorf("%w: distinct nodes: %v", ErrQueryFailed, err)
		}
		stats.Nodes = append(stats.Nodes, node)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var gpsMin, gpsMax sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(gps_timestamp), MAX(gps_timestamp) FROM position WHERE "+window+" AND gps_timestamp IS NOT NULL",
		args...,
	).Scan(&gpsMin, &gpsMax)
	if err != nil {
		return stats, fmt.Errorf("%w: gps range: %v", ErrQueryFailed, err)
	}
	if gpsMin.Valid && gpsMax.Valid {
		stats.GPSMin = int64(gpsMin.Float64)
		stats.GPSMax = int64(gpsMax.Float64)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT DISTINCT runner_number FROM node_assignment WHERE "+window+" AND type = 'assign' ORDER BY runner_number",
		args...,
	)
	if err != nil {
		return stats, fmt.Errorf("%w: assigned runners: %v", ErrQueryFailed, err)
	}
	defer rows.Close()
	for rows.Next() {
		var runner int64
		if err := rows.Scan(&runner); err != nil {
			return stats, fmt.Errorf("%w: assigned runners: %v", ErrQueryFailed, err)
		}
		stats.RunnerNumbers = append(stats.RunnerNumbers, runner)
	}
	return stats, rows.Err()
}

// AssignmentEvents returns the log up to and including upTo. Rowid breaks
// timestamp ties so replay order matches insertion order.
func (s *SQLiteStore) AssignmentEvents(ctx context.Context, upTo int64) ([]model.AssignmentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT runner_number, node_id, timestamp, type
		FROM node_assignment
		WHERE timestamp <= ?
		ORDER BY timestamp ASC, rowid ASC
	`, upTo)
	if err != nil {
		return nil, fmt.Errorf("%w: assignment events: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var events []model.AssignmentEvent
	for rows.Next() {
		var ev model.AssignmentEvent
		var ts float64
		var kind string
		if err := rows.Scan(&ev.RunnerID, &ev.NodeID, &ts, &kind); err != nil {
			return nil, fmt.Errorf("%w: assignment events: %v", ErrQueryFailed, err)
		}
		ev.Timestamp = int64(ts)
		ev.Kind = model.EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Runners returns registry rows for the given ids, ascending by id.
func (s *SQLiteStore) Runners(ctx context.Context, ids []int64) ([]model.Runner, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		"SELECT id, name FROM runner WHERE id IN (%s) ORDER BY id",
		placeholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: runners: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var runners []model.Runner
	for rows.Next() {
		var r model.Runner
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("%w: runners: %v", ErrQueryFailed, err)
		}
		runners = append(runners, r)
	}
	return runners, rows.Err()
}

// Geofences returns all geofence definitions ordered by sequence.
func (s *SQLiteStore) Geofences(ctx context.Context) ([]model.Geofence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, sequence, latitude, longitude, radius
		FROM geofence
		ORDER BY sequence ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: geofences: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var fences []model.Geofence
	for rows.Next() {
		var g model.Geofence
		if err := rows.Scan(&g.ID, &g.Type, &g.Sequence, &g.Latitude, &g.Longitude, &g.Radius); err != nil {
			return nil, fmt.Errorf("%w: geofences: %v", ErrQueryFailed, err)
		}
		fences = append(fences, g)
	}
	return fences, rows.Err()
}

// Positions returns pings for the given nodes within [start, end] with
// non-null coordinates, ascending by GPS timestamp.
func (s *SQLiteStore) Positions(ctx context.Context, nodeIDs []string, start, end int64) ([]model.PositionPing, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT from_id, latitude, longitude, gps_timestamp
		FROM position
		WHERE from_id IN (%s)
		  AND gps_timestamp >= ?
		  AND gps_timestamp <= ?
		  AND latitude IS NOT NULL
		  AND longitude IS NOT NULL
		ORDER BY gps_timestamp ASC, rowid ASC
	`, placeholders(len(nodeIDs)))

	args := make([]any, 0, len(nodeIDs)+2)
	for _, n := range nodeIDs {
		args = append(args, n)
	}
	args = append(args, start, end)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: positions: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var pings []model.PositionPing
	for rows.Next() {
		var p model.PositionPing
		var ts float64
		if err := rows.Scan(&p.NodeID, &p.Latitude, &p.Longitude, &ts); err != nil {
			return nil, fmt.Errorf("%w: positions: %v", ErrQueryFailed, err)
		}
		p.GPSTimestamp = int64(ts)
		pings = append(pings, p)
	}
	return pings, rows.Err()
}

// ScoringRecords returns timing data for the given runners with per-stage
// enter/exit times. excludeDNF drops rows without a finish entry.
func (s *SQLiteStore) ScoringRecords(ctx context.Context, runnerIDs []int64, excludeDNF bool) ([]model.ScoringRecord, error) {
	if len(runnerIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT runner_id, exited_start, enter_finish, total_run_time
		FROM runner_score
		WHERE runner_id IN (%s)
	`, placeholders(len(runnerIDs)))
	if excludeDNF {
		query += " AND enter_finish IS NOT NULL"
	}
	query += " ORDER BY runner_id"

	rows, err := s.db.QueryContext(ctx, query, int64Args(runnerIDs)...)
	if err != nil {
		return nil, fmt.Errorf("%w: scoring records: %v", ErrQueryFailed, err)
	}

	var records []model.ScoringRecord
	for rows.Next() {
		var r model.ScoringRecord
		var exitedStart, enterFinish, total sql.NullFloat64
		if err := rows.Scan(&r.RunnerID, &exitedStart, &enterFinish, &total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scoring records: %v", ErrQueryFailed, err)
		}
		if exitedStart.Valid {
			r.ExitedStart = int64(exitedStart.Float64)
		}
		if enterFinish.Valid {
			r.EnterFinish = int64(enterFinish.Float64)
		}
		if total.Valid {
			r.TotalRunTime = int64(total.Float64)
		}
		r.Stages = make(map[int]model.StageTime)
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		if err := s.loadStageTimes(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// loadStageTimes fills the per-stage enter/exit map for one record.
func (s *SQLiteStore) loadStageTimes(ctx context.Context, rec *model.ScoringRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage_idx, enter_timestamp, exit_timestamp
		FROM stage_time
		WHERE runner_id = ?
		ORDER BY stage_idx ASC
	`, rec.RunnerID)
	if err != nil {
		return fmt.Errorf("%w: stage times: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var enter, exit sql.NullFloat64
		if err := rows.Scan(&idx, &enter, &exit); err != nil {
			return fmt.Errorf("%w: stage times: %v", ErrQueryFailed, err)
		}
		st := model.StageTime{}
		if enter.Valid {
			st.Enter = int64(enter.Float64)
		}
		if exit.Valid {
			st.Exit = int64(exit.Float64)
		}
		rec.Stages[idx] = st
	}
	return rows.Err()
}

// TotalStages counts the stage geofences on the course.
func (s *SQLiteStore) TotalStages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM geofence WHERE type = 'stage'",
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: total stages: %v", ErrQueryFailed, err)
	}
	return n, nil
}

// placeholders builds a "?, ?, ?" list for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
