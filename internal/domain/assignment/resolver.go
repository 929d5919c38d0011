// Package assignment reconstructs node->runner bindings from the
// append-only assign/unassign event log.
//
// The core is a single forward sweep over the log that materializes each
// node's binding history as a set of non-overlapping intervals. The
// point-in-time and window-overlap queries are thin wrappers over that
// sweep, so every query shares one replay semantics.
package assignment

import (
	"sort"

	"github.com/lorelei/raceexport/internal/domain/model"
)

// Snapshot is an instantaneous two-way node<->runner mapping.
type Snapshot struct {
	NodeToRunner map[string]int64
	RunnerToNode map[int64]string
}

// openBinding tracks a node's currently active assignment during the sweep.
type openBinding struct {
	runnerID int64
	start    int64
}

// BuildIntervals replays the log up to horizon and returns every resolved
// binding interval, grouped implicitly by node via the NodeID field.
// Bindings still active at the horizon get End == model.Open; callers clip
// to their own query bound. Intervals for the same node never overlap: an
// assign to an occupied node closes the previous occupant first, and an
// assign for a runner already bound elsewhere retires the old node.
// Malformed input (stale unassigns, repeated assigns) never errors.
func BuildIntervals(events []model.AssignmentEvent, horizon int64) []model.Interval {
	replay := make([]model.AssignmentEvent, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp <= horizon {
			replay = append(replay, ev)
		}
	}
	// Stable: the log's own order is the authority for equal timestamps.
	sort.SliceStable(replay, func(i, j int) bool {
		return replay[i].Timestamp < replay[j].Timestamp
	})

	var intervals []model.Interval
	open := make(map[string]openBinding) // node -> active binding
	runnerNode := make(map[int64]string) // runner -> node it occupies

	closeNode := func(nodeID string, at int64) {
		b, ok := open[nodeID]
		if !ok {
			return
		}
		intervals = append(intervals, model.Interval{
			NodeID:   nodeID,
			RunnerID: b.runnerID,
			Start:    b.start,
			End:      at,
		})
		delete(open, nodeID)
		delete(runnerNode, b.runnerID)
	}

	for _, ev := range replay {
		switch ev.Kind {
		case model.Assign:
			// A runner carries at most one node at a time.
			if prev, ok := runnerNode[ev.RunnerID]; ok && prev != ev.NodeID {
				closeNode(prev, ev.Timestamp)
			}
			closeNode(ev.NodeID, ev.Timestamp)
			open[ev.NodeID] = openBinding{runnerID: ev.RunnerID, start: ev.Timestamp}
			runnerNode[ev.RunnerID] = ev.NodeID
		case model.Unassign:
			// Stale unassigns for unbound nodes are a no-op.
			closeNode(ev.NodeID, ev.Timestamp)
		}
	}

	for nodeID := range open {
		closeNode(nodeID, model.Open)
	}

	// Deterministic output order regardless of map iteration.
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start != intervals[j].Start {
			return intervals[i].Start < intervals[j].Start
		}
		return intervals[i].NodeID < intervals[j].NodeID
	})
	return intervals
}

// SnapshotAt resolves the instantaneous mapping as of cutoff. The latest
// assign at or before cutoff wins unless a later unassign closed it.
func SnapshotAt(events []model.AssignmentEvent, cutoff int64) Snapshot {
	snap := Snapshot{
		NodeToRunner: make(map[string]int64),
		RunnerToNode: make(map[int64]string),
	}
	for _, iv := range BuildIntervals(events, cutoff) {
		// Only bindings still open at the horizon survive. An unassign at
		// exactly the cutoff closes the interval and drops it here.
		if iv.End == model.Open {
			snap.NodeToRunner[iv.NodeID] = iv.RunnerID
			snap.RunnerToNode[iv.RunnerID] = iv.NodeID
		}
	}
	return snap
}

// OverlapWindow resolves the set of bindings that were active at any point
// during [start, end]. Each node contributes at most one pair: when a node
// saw reassignment churn inside the window, the earliest overlapping
// assignment wins. This earliest-wins tie-break is preserved observed
// behavior, asymmetric with SnapshotAt's latest-wins.
func OverlapWindow(events []model.AssignmentEvent, start, end int64) Snapshot {
	snap := Snapshot{
		NodeToRunner: make(map[string]int64),
		RunnerToNode: make(map[int64]string),
	}
	for _, iv := range BuildIntervals(events, end) {
		if !iv.Overlaps(start, end) {
			continue
		}
		if _, taken := snap.NodeToRunner[iv.NodeID]; taken {
			continue
		}
		snap.NodeToRunner[iv.NodeID] = iv.RunnerID
		snap.RunnerToNode[iv.RunnerID] = iv.NodeID
	}
	return snap
}

// RunnerIntervals returns, per runner, the binding intervals overlapping
// [start, end], in ascending start order. Open ends are clipped to end so
// callers can use the bounds directly as position query windows.
func RunnerIntervals(events []model.AssignmentEvent, start, end int64) map[int64][]model.Interval {
	out := make(map[int64][]model.Interval)
	for _, iv := range BuildIntervals(events, end) {
		if !iv.Overlaps(start, end) {
			continue
		}
		if iv.End > end {
			iv.End = end
		}
		out[iv.RunnerID] = append(out[iv.RunnerID], iv)
	}
	return out
}
