package pupil

import (
	"math"
	"sync"
)

// Calibrator search constants.
const (
	ThresholdStep     = 5
	ThresholdMin      = 5
	ThresholdMax      = 95
	CalibrationFrames = 20
	IrisCoverage      = 0.48
	CalibrationInset  = 5
)

// Calibrator learns, per eye, the binarisation threshold whose dark-pixel
// fraction tracks the expected iris coverage. It is shared between the
// capture goroutine and the UI, so every access goes through mu.
type Calibrator struct {
	mu       sync.Mutex
	history  [sideCount][]int
	target   int
	coverage float64
	inset    int
}

// CalibratorSnapshot is a copy of the learned history, used to carry
// calibration across a stop/start cycle.
type CalibratorSnapshot struct {
	Left  []int `json:"left"`
	Right []int `json:"right"`
}

// NewCalibrator creates a calibrator that converges after targetFrames
// evaluations per side.
func NewCalibrator(targetFrames int, coverage float64) *Calibrator {
	if targetFrames <= 0 {
		targetFrames = CalibrationFrames
	}
	if coverage <= 0 || coverage >= 1 {
		coverage = IrisCoverage
	}
	c := &Calibrator{
		target:   targetFrames,
		coverage: coverage,
		inset:    CalibrationInset,
	}
	for i := range c.history {
		c.history[i] = make([]int, 0, targetFrames)
	}
	return c
}

// Evaluate finds this frame's best threshold for the isolated eye and
// records it. Once calibration is complete the frame is ignored and the
// converged threshold is returned.
func (c *Calibrator) Evaluate(side Side, eye Gray) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completeLocked() {
		return c.meanLocked(side)
	}

	best, ok := BestThreshold(eye, c.coverage, c.inset)
	if !ok {
		return 0, false
	}

	i := side.index()
	if len(c.history[i]) < c.target {
		c.history[i] = append(c.history[i], best)
	}
	return best, true
}

// Threshold returns the mean of the recorded thresholds for a side.
func (c *Calibrator) Threshold(side Side) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meanLocked(side)
}

// IsComplete reports whether both sides reached the target frame count.
func (c *Calibrator) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeLocked()
}

// Progress returns the number of recorded frames per side.
func (c *Calibrator) Progress() (left, right, target int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history[0]), len(c.history[1]), c.target
}

// Reset forgets all recorded thresholds.
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.history {
		c.history[i] = c.history[i][:0]
	}
}

// Snapshot copies the recorded history.
func (c *Calibrator) Snapshot() CalibratorSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CalibratorSnapshot{
		Left:  append([]int(nil), c.history[0]...),
		Right: append([]int(nil), c.history[1]...),
	}
}

// Restore replaces the history with a snapshot. Out-of-range values are
// dropped and each side is capped at the target count.
func (c *Calibrator) Restore(s CalibratorSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, values := range [sideCount][]int{s.Left, s.Right} {
		c.history[i] = c.history[i][:0]
		for _, v := range values {
			if len(c.history[i]) == c.target {
				break
			}
			if v >= ThresholdMin && v <= ThresholdMax && v%ThresholdStep == 0 {
				c.history[i] = append(c.history[i], v)
			}
		}
	}
}

func (c *Calibrator) completeLocked() bool {
	return len(c.history[0]) >= c.target && len(c.history[1]) >= c.target
}

func (c *Calibrator) meanLocked(side Side) (int, bool) {
	h := c.history[side.index()]
	if len(h) == 0 {
		return 0, false
	}
	sum := 0
	for _, v := range h {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(h)))), true
}

// BestThreshold scans candidates ThresholdMin..ThresholdMax and returns the
// one whose dark fraction inside the inset interior is closest to coverage.
// Ties keep the lower candidate.
func BestThreshold(eye Gray, coverage float64, inset int) (int, bool) {
	x0, y0 := inset, inset
	x1, y1 := eye.Width-inset, eye.Height-inset
	if x1 <= x0 || y1 <= y0 {
		return 0, false
	}
	total := float64((x1 - x0) * (y1 - y0))

	// Histogram once, then each candidate is a prefix sum.
	var hist [256]int
	for y := y0; y < y1; y++ {
		row := eye.Pix[y*eye.Stride : y*eye.Stride+x1]
		for _, v := range row[x0:] {
			hist[v]++
		}
	}

	best, bestDiff := 0, math.Inf(1)
	below, next := 0, 0
	for t := ThresholdMin; t <= ThresholdMax; t += ThresholdStep {
		for ; next < t; next++ {
			below += hist[next]
		}
		diff := math.Abs(float64(below)/total - coverage)
		if diff < bestDiff {
			best, bestDiff = t, diff
		}
	}
	return best, true
}
