// Package replay attributes raw position pings to runners and buckets
// them into a time-indexed structure for playback.
package replay

import (
	"sort"

	"github.com/lorelei/raceexport/internal/domain/assignment"
	"github.com/lorelei/raceexport/internal/domain/model"
)

// Mapping is a resolved node->runner mapping. The three historical export
// variants (global snapshot, window-overlap, per-runner intervals) are
// strategies behind this one interface so the aggregation logic exists once.
type Mapping interface {
	// Resolve returns the runner bound to nodeID at time t, if any.
	Resolve(nodeID string, t int64) (int64, bool)

	// WindowFor returns the position query window for a runner, if the
	// mapping constrains it. Strategies without per-runner windows report
	// ok == false and the caller uses the global race window.
	WindowFor(runnerID int64) (start, end int64, ok bool)

	// Nodes lists every node the mapping can resolve, sorted for
	// deterministic query construction.
	Nodes() []string

	// Runners lists every runner the mapping can produce, sorted.
	Runners() []int64
}

// snapshotMapping resolves against a fixed instantaneous mapping,
// ignoring t. Used for point-in-time exports.
type snapshotMapping struct {
	snap assignment.Snapshot
}

// NewSnapshotMapping wraps a point-in-time snapshot.
func NewSnapshotMapping(snap assignment.Snapshot) Mapping {
	return &snapshotMapping{snap: snap}
}

func (m *snapshotMapping) Resolve(nodeID string, _ int64) (int64, bool) {
	r, ok := m.snap.NodeToRunner[nodeID]
	return r, ok
}

func (m *snapshotMapping) WindowFor(int64) (int64, int64, bool) { return 0, 0, false }

func (m *snapshotMapping) Nodes() []string { return sortedNodes(m.snap.NodeToRunner) }

func (m *snapshotMapping) Runners() []int64 { return sortedRunners(m.snap.RunnerToNode) }

// overlapMapping resolves against the window-overlap snapshot: one pair per
// node, earliest overlapping assignment wins. Time is ignored on Resolve
// because the pairing already encodes the window.
type overlapMapping struct {
	snap assignment.Snapshot
}

// NewOverlapMapping wraps a window-overlap resolution.
func NewOverlapMapping(snap assignment.Snapshot) Mapping {
	return &overlapMapping{snap: snap}
}

func (m *overlapMapping) Resolve(nodeID string, _ int64) (int64, bool) {
	r, ok := m.snap.NodeToRunner[nodeID]
	return r, ok
}

func (m *overlapMapping) WindowFor(int64) (int64, int64, bool) { return 0, 0, false }

func (m *overlapMapping) Nodes() []string { return sortedNodes(m.snap.NodeToRunner) }

func (m *overlapMapping) Runners() []int64 { return sortedRunners(m.snap.RunnerToNode) }

// intervalMapping resolves each ping against the runner's own binding
// window, supporting races where devices were shuffled among nodes
// mid-race. Resolve honors t; WindowFor spans the runner's bindings.
type intervalMapping struct {
	byNode   map[string][]model.Interval
	byRunner map[int64][]model.Interval
}

// NewIntervalMapping wraps per-runner binding intervals.
func NewIntervalMapping(byRunner map[int64][]model.Interval) Mapping {
	m := &intervalMapping{
		byNode:   make(map[string][]model.Interval),
		byRunner: byRunner,
	}
	for _, ivs := range byRunner {
		for _, iv := range ivs {
			m.byNode[iv.NodeID] = append(m.byNode[iv.NodeID], iv)
		}
	}
	for node := range m.byNode {
		ivs := m.byNode[node]
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
	}
	return m
}

func (m *intervalMapping) Resolve(nodeID string, t int64) (int64, bool) {
	for _, iv := range m.byNode[nodeID] {
		if t >= iv.Start && t <= iv.End {
			return iv.RunnerID, true
		}
	}
	return 0, false
}

func (m *intervalMapping) WindowFor(runnerID int64) (int64, int64, bool) {
	ivs := m.byRunner[runnerID]
	if len(ivs) == 0 {
		return 0, 0, false
	}
	start, end := ivs[0].Start, ivs[0].End
	for _, iv := range ivs[1:] {
		if iv.Start < start {
			start = iv.Start
		}
		if iv.End > end {
			end = iv.End
		}
	}
	return start, end, true
}

func (m *intervalMapping) Nodes() []string { return sortedNodes(m.byNode) }

func (m *intervalMapping) Runners() []int64 { return sortedRunnerIntervals(m.byRunner) }

func sortedNodes[V any](byNode map[string]V) []string {
	nodes := make([]string, 0, len(byNode))
	for n := range byNode {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func sortedRunners(byRunner map[int64]string) []int64 {
	runners := make([]int64, 0, len(byRunner))
	for r := range byRunner {
		runners = append(runners, r)
	}
	sort.Slice(runners, func(i, j int) bool { return runners[i] < runners[j] })
	return runners
}

func sortedRunnerIntervals(byRunner map[int64][]model.Interval) []int64 {
	runners := make([]int64, 0, len(byRunner))
	for r := range byRunner {
		runners = append(runners, r)
	}
	sort.Slice(runners, func(i, j int) bool { return runners[i] < runners[j] })
	return runners
}
