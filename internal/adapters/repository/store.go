// Package repository defines read-only access to the race-tracking
// event database and its SQLite implementation.
package repository

import (
	"context"

	"github.com/lorelei/raceexport/internal/domain/model"
)

// ResetWindowStats summarizes the telemetry recorded between two
// race resets, for the human-facing listing.
type ResetWindowStats struct {
	PositionCount int64
	Nodes         []string
	RunnerNumbers []int64
	GPSMin        int64 // 0 when no GPS-stamped positions exist
	GPSMax        int64
}

// Store provides read access to the externally owned event log,
// position stream, registries, and scoring data. Implementations
// never mutate source data.
type Store interface {
	// RaceResets returns all administrative reset markers, ascending
	// by reset timestamp.
	RaceResets(ctx context.Context) ([]model.RaceReset, error)

	// ResetWindowStats summarizes positions and assignments recorded in
	// [start, end). end == 0 means "until now" (open window).
	ResetWindowStats(ctx context.Context, start, end int64) (ResetWindowStats, error)

	// AssignmentEvents returns the assignment log up to and including
	// upTo, in timestamp order with log order breaking ties.
	AssignmentEvents(ctx context.Context, upTo int64) ([]model.AssignmentEvent, error)

	// Runners returns registry rows for the given ids. Unknown ids are
	// simply absent from the result.
	Runners(ctx context.Context, ids []int64) ([]model.Runner, error)

	// Geofences returns all geofence definitions ordered by sequence.
	Geofences(ctx context.Context) ([]model.Geofence, error)

	// Positions returns pings for the given nodes within [start, end],
	// excluding rows with NULL coordinates, ascending by GPS timestamp.
	Positions(ctx context.Context, nodeIDs []string, start, end int64) ([]model.PositionPing, error)

	// ScoringRecords returns timing data for the given runners,
	// optionally excluding DNF rows, with per-stage enter/exit times.
	ScoringRecords(ctx context.Context, runnerIDs []int64, excludeDNF bool) ([]model.ScoringRecord, error)

	// TotalStages returns the number of stage geofences on the course.
	TotalStages(ctx context.Context) (int, error)

	// Close releases the underlying connection.
	Close() error
}
