// Package timebounds derives the effective race window from timing
// checkpoints instead of caller-supplied guesses.
package timebounds

import "github.com/lorelei/raceexport/internal/domain/model"

// BufferSeconds pads the derived window on both sides.
const BufferSeconds int64 = 300

// Bounds is the derived race window. A zero Valid flag means the source
// records carried no usable checkpoint for that side and the caller must
// fall back to its own bounds.
type Bounds struct {
	Start      int64
	StartValid bool
	End        int64
	EndValid   bool
}

// Calculate computes (min start-exit − buffer, max finish-entry + buffer)
// over the given scoring records with the standard 300 s buffer. Runners
// that never left the start zone are excluded from the min; DNF runners
// are excluded from the max but still contribute to the min when they
// started.
func Calculate(records []model.ScoringRecord) Bounds {
	return CalculateWithBuffer(records, BufferSeconds)
}

// CalculateWithBuffer is Calculate with a caller-chosen buffer.
func CalculateWithBuffer(records []model.ScoringRecord, buffer int64) Bounds {
	var b Bounds
	for _, r := range records {
		if r.Started() {
			if !b.StartValid || r.ExitedStart < b.Start {
				b.Start = r.ExitedStart
				b.StartValid = true
			}
		}
		if r.Finished() {
			if !b.EndValid || r.EnterFinish > b.End {
				b.End = r.EnterFinish
				b.EndValid = true
			}
		}
	}
	if b.StartValid {
		b.Start -= buffer
	}
	if b.EndValid {
		b.End += buffer
	}
	return b
}
