// Package calibration implements the two gaze calibration flows: the
// 9-point directional flow and the screen-target flow used for attention
// enforcement.
//
// Both are single-writer state machines. The caller owns the clock and
// passes now to every transition, so countdowns can be cancelled or
// replayed deterministically.
package calibration

import (
	"errors"
	"time"
)

var (
	// ErrCalibrationInvalid means the flow finished without enough samples
	// to compute thresholds. Callers should keep using defaults.
	ErrCalibrationInvalid = errors.New("calibration invalid")

	// ErrNotFinished is returned when a result is requested early.
	ErrNotFinished = errors.New("calibration not finished")
)

// Kind identifies a calibration flow.
type Kind string

const (
	KindNinePoint Kind = "nine_point"
	KindScreen    Kind = "screen"
)

// ParseKind accepts the wire names of the flows.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindNinePoint, KindScreen:
		return Kind(s), true
	}
	return "", false
}

// Phase is where a flow is within the current step.
type Phase string

const (
	PhaseIdle       Phase = "idle"       // Not calibrating
	PhasePause      Phase = "pause"      // Settling before a countdown
	PhaseCountdown  Phase = "countdown"  // Counting down to collection
	PhaseCollecting Phase = "collecting" // Recording samples
	PhaseComplete   Phase = "complete"   // All steps done
)

// Progress is a UI snapshot of a flow.
type Progress struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Phase     Phase         `json:"phase"`
	Step      int           `json:"step"`
	Steps     int           `json:"steps"`
	Label     string        `json:"label"`
	Target    *Target       `json:"target,omitempty"`
	Collected int           `json:"collected"`
	Required  int           `json:"required"`
	Remaining time.Duration `json:"remaining"`
	Suspended bool          `json:"suspended"`
	Failures  int           `json:"failures"`
}

// Active reports whether the flow is still running.
func (p Progress) Active() bool {
	return p.Phase != PhaseIdle && p.Phase != PhaseComplete
}

// Range is the observed extent of one ratio axis.
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

func (r *Range) add(v float64) {
	if r.Count == 0 || v < r.Min {
		r.Min = v
	}
	if r.Count == 0 || v > r.Max {
		r.Max = v
	}
	r.Count++
}

// Empty reports whether the range has no samples.
func (r Range) Empty() bool {
	return r.Count == 0
}

func remaining(total, elapsed time.Duration) time.Duration {
	if elapsed >= total {
		return 0
	}
	return total - elapsed
}
