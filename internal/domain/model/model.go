// Package model contains domain models passed between layers.
package model

import "math"

// EventKind discriminates assignment log entries.
type EventKind string

// Assignment event kinds as stored in the log.
const (
	Assign   EventKind = "assign"
	Unassign EventKind = "unassign"
)

// Open marks an interval end for a binding that is still active.
const Open int64 = math.MaxInt64

// AssignmentEvent is one entry of the append-only node-assignment log.
// The log is externally owned; unassign events may arrive without a
// matching prior assign and must be tolerated.
type AssignmentEvent struct {
	RunnerID  int64
	NodeID    string
	Timestamp int64 // unix seconds
	Kind      EventKind
}

// Interval is a resolved node->runner binding valid for [Start, End).
// End == Open means the binding was still active at the query horizon.
type Interval struct {
	NodeID   string
	RunnerID int64
	Start    int64
	End      int64
}

// Overlaps reports whether the interval touches the window [s, e].
func (iv Interval) Overlaps(s, e int64) bool {
	return iv.Start <= e && iv.End >= s
}

// PositionPing is one raw GPS fix reported by a node.
type PositionPing struct {
	NodeID       string
	Latitude     float64
	Longitude    float64
	GPSTimestamp int64 // unix seconds
}

// StageTime holds a runner's enter/exit timestamps for one stage.
// Zero means the runner never reached that boundary.
type StageTime struct {
	Enter int64 `json:"enter"`
	Exit  int64 `json:"exit"`
}

// ScoringRecord is precomputed timing data for one runner.
// EnterFinish == 0 marks a DNF.
type ScoringRecord struct {
	RunnerID     int64
	ExitedStart  int64
	EnterFinish  int64
	TotalRunTime int64
	Stages       map[int]StageTime
}

// Finished reports whether the runner crossed the finish line.
func (r ScoringRecord) Finished() bool { return r.EnterFinish > 0 }

// Started reports whether the runner left the start zone.
func (r ScoringRecord) Started() bool { return r.ExitedStart > 0 }

// Geofence is a circular race checkpoint or boundary.
type Geofence struct {
	ID        int64   `json:"id"`
	Type      string  `json:"type"`
	Sequence  int     `json:"sequence"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// Runner is a race participant from the registry.
type Runner struct {
	ID   int64
	Name string
}

// RaceReset is an administrative marker segmenting historical data
// into distinct race occurrences. Listing only; the resolver never
// consumes these.
type RaceReset struct {
	ID          int64
	Timestamp   int64
	Description string
}
