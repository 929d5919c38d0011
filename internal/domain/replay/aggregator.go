package replay

import (
	"math"
	"sort"

	"github.com/lorelei/raceexport/internal/domain/model"
)

// coordPrecision keeps payloads small without losing sub-meter accuracy.
const coordPrecision = 1e6

// Entry is one runner's rounded position inside a frame.
type Entry struct {
	RunnerID int64   `json:"r"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Frame groups every resolved position sharing one GPS second.
type Frame struct {
	Time    int64   `json:"t"`
	Entries []Entry `json:"p"`
}

// Stats counts what the aggregator absorbed silently.
type Stats struct {
	Resolved   int
	Unmapped   int // no runner bound to the node at ping time
	BadFix     int // NaN coordinates
	Duplicates int // repeated (timestamp, runner)
}

// Aggregate joins pings against the mapping and buckets them by GPS second.
// Frames come back sorted ascending by time; entries keep first-seen order
// within a frame so repeated runs are byte-stable. The first ping wins for a
// given (timestamp, runner); later duplicates are dropped.
func Aggregate(pings []model.PositionPing, m Mapping) ([]Frame, Stats) {
	var stats Stats
	frames := make(map[int64]*Frame)
	seen := make(map[int64]map[int64]struct{}) // time -> runners placed

	for _, ping := range pings {
		if math.IsNaN(ping.Latitude) || math.IsNaN(ping.Longitude) {
			stats.BadFix++
			continue
		}
		runnerID, ok := m.Resolve(ping.NodeID, ping.GPSTimestamp)
		if !ok {
			stats.Unmapped++
			continue
		}
		placed := seen[ping.GPSTimestamp]
		if placed == nil {
			placed = make(map[int64]struct{})
			seen[ping.GPSTimestamp] = placed
		}
		if _, dup := placed[runnerID]; dup {
			stats.Duplicates++
			continue
		}
		placed[runnerID] = struct{}{}

		f := frames[ping.GPSTimestamp]
		if f == nil {
			f = &Frame{Time: ping.GPSTimestamp}
			frames[ping.GPSTimestamp] = f
		}
		f.Entries = append(f.Entries, Entry{
			RunnerID: runnerID,
			Lat:      roundCoord(ping.Latitude),
			Lon:      roundCoord(ping.Longitude),
		})
		stats.Resolved++
	}

	out := make([]Frame, 0, len(frames))
	for _, f := range frames {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, stats
}

// roundCoord rounds to exactly 6 decimal digits.
func roundCoord(v float64) float64 {
	return math.Round(v*coordPrecision) / coordPrecision
}
