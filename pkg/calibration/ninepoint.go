package calibration

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Step is one instruction of the 9-point flow.
type Step int

const (
	StepCenter Step = iota
	StepLeft
	StepRight
	StepFarLeft
	StepFarRight
	StepUp
	StepDown
	StepTopLeft
	StepTopRight
)

// NinePointSteps is the fixed order of the flow.
var NinePointSteps = [...]Step{
	StepCenter, StepLeft, StepRight, StepFarLeft, StepFarRight,
	StepUp, StepDown, StepTopLeft, StepTopRight,
}

var stepNames = [...]string{
	StepCenter:   "center",
	StepLeft:     "left",
	StepRight:    "right",
	StepFarLeft:  "far_left",
	StepFarRight: "far_right",
	StepUp:       "up",
	StepDown:     "down",
	StepTopLeft:  "top_left",
	StepTopRight: "top_right",
}

var stepInstructions = [...]string{
	StepCenter:   "Look at the centre of the screen",
	StepLeft:     "Look slightly left",
	StepRight:    "Look slightly right",
	StepFarLeft:  "Look far left",
	StepFarRight: "Look far right",
	StepUp:       "Look up",
	StepDown:     "Look down",
	StepTopLeft:  "Look at the top-left corner",
	StepTopRight: "Look at the top-right corner",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Instruction is the prompt shown to the user.
func (s Step) Instruction() string {
	if s < 0 || int(s) >= len(stepInstructions) {
		return ""
	}
	return stepInstructions[s]
}

// Sample is one reading collected during a step.
type Sample struct {
	LeftRatio      float64 `json:"left_ratio"`
	RightRatio     float64 `json:"right_ratio"`
	LeftVertical   float64 `json:"left_vertical"`
	RightVertical  float64 `json:"right_vertical"`
	FaceWidthRatio float64 `json:"face_width_ratio"`
}

// Horizontal is the mean horizontal ratio of both eyes.
func (s Sample) Horizontal() float64 {
	return (s.LeftRatio + s.RightRatio) / 2
}

// Vertical is the mean vertical ratio of both eyes.
func (s Sample) Vertical() float64 {
	return (s.LeftVertical + s.RightVertical) / 2
}

// NinePointConfig tunes the 9-point flow.
type NinePointConfig struct {
	Countdown      time.Duration // Delay before each step starts collecting
	SamplesPerStep int           // Samples that complete a step
}

// DefaultNinePointConfig returns the stock timing.
func DefaultNinePointConfig() NinePointConfig {
	return NinePointConfig{
		Countdown:      2 * time.Second,
		SamplesPerStep: 30,
	}
}

// NinePointResult is what the 9-point flow measured.
type NinePointResult struct {
	Left      Range      `json:"left"`  // horizontal, left + far-left
	Right     Range      `json:"right"` // horizontal, right + far-right
	Up        Range      `json:"up"`    // vertical, up + top corners
	Down      Range      `json:"down"`  // vertical, down
	Center    gaze.Ratio `json:"center"`
	FaceWidth float64    `json:"face_width"`
	Samples   int        `json:"samples"`
}

// Thresholds derives the screen box from the directional extremes.
func (r NinePointResult) Thresholds() gaze.Thresholds {
	return gaze.Thresholds{
		HorizontalMin:      r.Right.Min,
		HorizontalMax:      r.Left.Max,
		VerticalMin:        r.Up.Min,
		VerticalMax:        r.Down.Max,
		ReferenceFaceWidth: r.FaceWidth,
	}
}

// DirectionThresholds places each cut-off halfway between the centre
// reading and the nearest edge of the matching group.
func (r NinePointResult) DirectionThresholds() gaze.DirectionThresholds {
	return gaze.DirectionThresholds{
		LeftAbove:  (r.Center.Horizontal + r.Left.Min) / 2,
		RightBelow: (r.Center.Horizontal + r.Right.Max) / 2,
		UpBelow:    (r.Center.Vertical + r.Up.Max) / 2,
		DownAbove:  (r.Center.Vertical + r.Down.Min) / 2,
	}
}

// NinePoint is the directional calibration flow. Not safe for concurrent use.
type NinePoint struct {
	config NinePointConfig

	id         string
	phase      Phase
	step       int
	phaseStart time.Time
	samples    [len(NinePointSteps)][]Sample
}

// NewNinePoint creates an idle flow.
func NewNinePoint(config NinePointConfig) *NinePoint {
	if config.SamplesPerStep < 1 {
		config.SamplesPerStep = DefaultNinePointConfig().SamplesPerStep
	}
	return &NinePoint{config: config, phase: PhaseIdle}
}

// Kind implements Flow.
func (n *NinePoint) Kind() Kind {
	return KindNinePoint
}

// Start begins (or restarts) the flow at the centre step.
func (n *NinePoint) Start(now time.Time) {
	n.reset()
	n.id = uuid.NewString()
	n.phase = PhaseCountdown
	n.phaseStart = now
}

// Tick advances the countdown.
func (n *NinePoint) Tick(now time.Time) {
	if n.phase == PhaseCountdown && now.Sub(n.phaseStart) >= n.config.Countdown {
		n.phase = PhaseCollecting
		n.phaseStart = now
	}
}

// AddSample records a reading for the current step. It returns false when
// the flow is not collecting. The step advances on its own once full.
func (n *NinePoint) AddSample(s Sample, now time.Time) bool {
	n.Tick(now)
	if n.phase != PhaseCollecting {
		return false
	}

	n.samples[n.step] = append(n.samples[n.step], s)
	if len(n.samples[n.step]) >= n.config.SamplesPerStep {
		n.advance(now)
	}
	return true
}

// Skip moves to the next step, keeping whatever the current one collected.
func (n *NinePoint) Skip(now time.Time) {
	if n.phase == PhaseCountdown || n.phase == PhaseCollecting {
		n.advance(now)
	}
}

// Cancel discards everything and returns to idle.
func (n *NinePoint) Cancel() {
	n.reset()
}

// Done reports whether every step was collected or skipped.
func (n *NinePoint) Done() bool {
	return n.phase == PhaseComplete
}

// CurrentStep returns the step being collected.
func (n *NinePoint) CurrentStep() (Step, bool) {
	if n.phase != PhaseCountdown && n.phase != PhaseCollecting {
		return 0, false
	}
	return NinePointSteps[n.step], true
}

// IsComplete reports whether the flow finished with every essential group
// sampled.
func (n *NinePoint) IsComplete() bool {
	_, err := n.Result()
	return err == nil
}

// Result aggregates the collected samples.
func (n *NinePoint) Result() (NinePointResult, error) {
	if n.phase != PhaseComplete {
		return NinePointResult{}, ErrNotFinished
	}

	var res NinePointResult
	var faceSum float64
	for i, samples := range n.samples {
		for _, s := range samples {
			switch NinePointSteps[i] {
			case StepLeft, StepFarLeft:
				res.Left.add(s.Horizontal())
			case StepRight, StepFarRight:
				res.Right.add(s.Horizontal())
			case StepUp, StepTopLeft, StepTopRight:
				res.Up.add(s.Vertical())
			case StepDown:
				res.Down.add(s.Vertical())
			}
			faceSum += s.FaceWidthRatio
			res.Samples++
		}
	}

	center := n.samples[StepCenter]
	if len(center) == 0 {
		return NinePointResult{}, fmt.Errorf("%w: no centre samples", ErrCalibrationInvalid)
	}
	for _, s := range center {
		res.Center.Horizontal += s.Horizontal()
		res.Center.Vertical += s.Vertical()
	}
	res.Center.Horizontal /= float64(len(center))
	res.Center.Vertical /= float64(len(center))
	res.FaceWidth = faceSum / float64(res.Samples)

	groups := []struct {
		name string
		r    Range
	}{
		{"left", res.Left},
		{"right", res.Right},
		{"up", res.Up},
		{"down", res.Down},
	}
	for _, g := range groups {
		if g.r.Empty() {
			return NinePointResult{}, fmt.Errorf("%w: no %s samples", ErrCalibrationInvalid, g.name)
		}
	}
	return res, nil
}

// Progress returns a UI snapshot.
func (n *NinePoint) Progress(now time.Time) Progress {
	p := Progress{
		ID:       n.id,
		Kind:     KindNinePoint,
		Phase:    n.phase,
		Step:     n.step,
		Steps:    len(NinePointSteps),
		Required: n.config.SamplesPerStep,
	}
	if step, ok := n.CurrentStep(); ok {
		p.Label = step.Instruction()
		p.Collected = len(n.samples[n.step])
	}
	if n.phase == PhaseCountdown {
		p.Remaining = remaining(n.config.Countdown, now.Sub(n.phaseStart))
	}
	return p
}

func (n *NinePoint) advance(now time.Time) {
	n.step++
	n.phaseStart = now
	if n.step >= len(NinePointSteps) {
		n.step = len(NinePointSteps)
		n.phase = PhaseComplete
		return
	}
	n.phase = PhaseCountdown
}

func (n *NinePoint) reset() {
	n.phase = PhaseIdle
	n.step = 0
	n.phaseStart = time.Time{}
	for i := range n.samples {
		n.samples[i] = nil
	}
}
