package calibration

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Target is a point on the screen, normalised to [0,1] with the origin at
// the top-left.
type Target struct {
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// centralBand is how far from the middle a target may be and still skip
// fixation checks.
const centralBand = 0.15

// IsCentral reports whether the target is near the screen centre.
func (t Target) IsCentral() bool {
	return math.Abs(t.X-0.5) <= centralBand && math.Abs(t.Y-0.5) <= centralBand
}

// ScreenTargets returns the nine targets in presentation order.
func ScreenTargets() []Target {
	return []Target{
		{Label: "center", X: 0.5, Y: 0.5},
		{Label: "top_left", X: 0.1, Y: 0.1},
		{Label: "top", X: 0.5, Y: 0.1},
		{Label: "top_right", X: 0.9, Y: 0.1},
		{Label: "right", X: 0.9, Y: 0.5},
		{Label: "bottom_right", X: 0.9, Y: 0.9},
		{Label: "bottom", X: 0.5, Y: 0.9},
		{Label: "bottom_left", X: 0.1, Y: 0.9},
		{Label: "left", X: 0.1, Y: 0.5},
	}
}

// ScreenConfig tunes the screen-target flow.
type ScreenConfig struct {
	PauseDuration          time.Duration // Settle time before each countdown
	CountdownDuration      time.Duration // Fixation countdown per target
	SamplesPerTarget       int           // Samples that complete a target
	StabilityTolerance     float64       // Max per-axis drift from the running mean
	MaxConsecutiveFailures int           // Failures tolerated before timers stop
}

// DefaultScreenConfig returns the stock timing.
func DefaultScreenConfig() ScreenConfig {
	return ScreenConfig{
		PauseDuration:          time.Second,
		CountdownDuration:      3 * time.Second,
		SamplesPerTarget:       15,
		StabilityTolerance:     0.08,
		MaxConsecutiveFailures: 5,
	}
}

// Reading is what the tracker saw on one frame.
type Reading struct {
	FacePresent bool
	Ratio       gaze.Ratio
	FaceWidth   float64
}

// ScreenSample binds a reading to the target it was captured for.
type ScreenSample struct {
	Target    int        `json:"target"`
	Ratio     gaze.Ratio `json:"ratio"`
	FaceWidth float64    `json:"face_width"`
	At        time.Time  `json:"at"`
}

// ScreenFlow is the screen-target calibration. Not safe for concurrent use.
type ScreenFlow struct {
	config  ScreenConfig
	targets []Target

	id        string
	phase     Phase
	target    int
	elapsed   time.Duration
	lastTick  time.Time
	failures  int
	suspended bool

	// fixation running mean for the current countdown
	fixSum   gaze.Ratio
	fixCount int

	collected int
	samples   []ScreenSample
	finished  time.Time
}

// NewScreenFlow creates an idle flow over the default targets.
func NewScreenFlow(config ScreenConfig) *ScreenFlow {
	if config.SamplesPerTarget < 1 {
		config.SamplesPerTarget = DefaultScreenConfig().SamplesPerTarget
	}
	return &ScreenFlow{config: config, targets: ScreenTargets(), phase: PhaseIdle}
}

// Kind implements Flow.
func (f *ScreenFlow) Kind() Kind {
	return KindScreen
}

// Start begins the flow at the first target.
func (f *ScreenFlow) Start(now time.Time) {
	f.reset()
	f.id = uuid.NewString()
	f.enter(PhasePause, now)
}

// Observe feeds one frame. It returns true when the reading was stored as
// a sample.
func (f *ScreenFlow) Observe(r Reading, now time.Time) bool {
	if !f.running() {
		return false
	}

	dt := now.Sub(f.lastTick)
	if dt < 0 {
		dt = 0
	}
	f.lastTick = now

	if f.validate(r) {
		f.failures = 0
		f.suspended = false
	} else {
		f.failures++
		if f.failures > f.config.MaxConsecutiveFailures && !f.suspended {
			f.suspended = true
			// Re-anchor fixation on the next good reading.
			f.fixSum, f.fixCount = gaze.Ratio{}, 0
		}
		if f.suspended {
			return false
		}
	}

	f.elapsed += dt

	switch f.phase {
	case PhasePause:
		if f.elapsed >= f.config.PauseDuration {
			f.enter(PhaseCountdown, now)
		}
	case PhaseCountdown:
		if f.failures == 0 {
			f.fixSum.Horizontal += r.Ratio.Horizontal
			f.fixSum.Vertical += r.Ratio.Vertical
			f.fixCount++
		}
		if f.elapsed >= f.config.CountdownDuration {
			f.enter(PhaseCollecting, now)
		}
	case PhaseCollecting:
		if f.failures > 0 {
			return false
		}
		f.samples = append(f.samples, ScreenSample{
			Target:    f.target,
			Ratio:     r.Ratio,
			FaceWidth: r.FaceWidth,
			At:        now,
		})
		f.collected++
		if f.collected >= f.config.SamplesPerTarget {
			f.advance(now)
		}
		return true
	}
	return false
}

// validate applies the gate for the current phase.
func (f *ScreenFlow) validate(r Reading) bool {
	if !r.FacePresent {
		return false
	}
	if f.phase != PhaseCountdown || f.targets[f.target].IsCentral() || f.fixCount == 0 {
		return true
	}
	n := float64(f.fixCount)
	dh := math.Abs(f.fixSum.Horizontal/n - r.Ratio.Horizontal)
	dv := math.Abs(f.fixSum.Vertical/n - r.Ratio.Vertical)
	return dh <= f.config.StabilityTolerance && dv <= f.config.StabilityTolerance
}

// Skip moves on to the next target. Samples already taken are kept.
func (f *ScreenFlow) Skip(now time.Time) {
	if f.running() {
		f.advance(now)
	}
}

// Cancel discards all samples and returns to idle.
func (f *ScreenFlow) Cancel() {
	f.reset()
}

// Done reports whether every target was collected or skipped.
func (f *ScreenFlow) Done() bool {
	return f.phase == PhaseComplete
}

// Suspended reports whether validation failures have stopped the timers.
func (f *ScreenFlow) Suspended() bool {
	return f.suspended
}

// Samples returns a copy of everything collected so far.
func (f *ScreenFlow) Samples() []ScreenSample {
	out := make([]ScreenSample, len(f.samples))
	copy(out, f.samples)
	return out
}

// Result computes the screen thresholds from all samples: global extremes
// of both axes and the mean face width.
func (f *ScreenFlow) Result() (gaze.Thresholds, error) {
	if f.phase != PhaseComplete {
		return gaze.Thresholds{}, ErrNotFinished
	}
	if len(f.samples) == 0 {
		return gaze.Thresholds{}, ErrCalibrationInvalid
	}

	var h, v Range
	var face float64
	for _, s := range f.samples {
		h.add(s.Ratio.Horizontal)
		v.add(s.Ratio.Vertical)
		face += s.FaceWidth
	}
	return gaze.Thresholds{
		HorizontalMin:      h.Min,
		HorizontalMax:      h.Max,
		VerticalMin:        v.Min,
		VerticalMax:        v.Max,
		ReferenceFaceWidth: face / float64(len(f.samples)),
		CreatedAt:          f.finished,
	}, nil
}

// Progress returns a UI snapshot.
func (f *ScreenFlow) Progress(now time.Time) Progress {
	p := Progress{
		ID:        f.id,
		Kind:      KindScreen,
		Phase:     f.phase,
		Step:      f.target,
		Steps:     len(f.targets),
		Required:  f.config.SamplesPerTarget,
		Suspended: f.suspended,
		Failures:  f.failures,
	}
	if f.running() {
		t := f.targets[f.target]
		p.Target = &t
		p.Label = t.Label
		p.Collected = f.collected
	}
	switch f.phase {
	case PhasePause:
		p.Remaining = remaining(f.config.PauseDuration, f.elapsed)
	case PhaseCountdown:
		p.Remaining = remaining(f.config.CountdownDuration, f.elapsed)
	}
	return p
}

func (f *ScreenFlow) running() bool {
	return f.phase == PhasePause || f.phase == PhaseCountdown || f.phase == PhaseCollecting
}

func (f *ScreenFlow) enter(phase Phase, now time.Time) {
	f.phase = phase
	f.elapsed = 0
	f.lastTick = now
	f.failures = 0
	f.suspended = false
	f.fixSum, f.fixCount = gaze.Ratio{}, 0
}

func (f *ScreenFlow) advance(now time.Time) {
	f.target++
	f.collected = 0
	if f.target >= len(f.targets) {
		f.target = len(f.targets)
		f.enter(PhaseComplete, now)
		f.finished = now
		return
	}
	f.enter(PhasePause, now)
}

func (f *ScreenFlow) reset() {
	f.phase = PhaseIdle
	f.target = 0
	f.elapsed = 0
	f.lastTick = time.Time{}
	f.failures = 0
	f.suspended = false
	f.fixSum, f.fixCount = gaze.Ratio{}, 0
	f.collected = 0
	f.samples = nil
	f.finished = time.Time{}
}

// Flow is the common surface of both calibration flows.
type Flow interface {
	Kind() Kind
	Start(now time.Time)
	Skip(now time.Time)
	Cancel()
	Done() bool
	Progress(now time.Time) Progress
}

var (
	_ Flow = (*NinePoint)(nil)
	_ Flow = (*ScreenFlow)(nil)
)
