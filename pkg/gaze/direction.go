// Package gaze turns pupil positions into normalised gaze ratios and
// coarse directions.
package gaze

import "fmt"

// Direction is one cell of the 3x3 gaze grid.
type Direction int

const (
	Center Direction = iota
	Left
	Right
	Up
	Down
	UpLeft
	UpRight
	DownLeft
	DownRight
)

var directionNames = [...]string{
	Center:    "center",
	Left:      "left",
	Right:     "right",
	Up:        "up",
	Down:      "down",
	UpLeft:    "up_left",
	UpRight:   "up_right",
	DownLeft:  "down_left",
	DownRight: "down_right",
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *Direction) UnmarshalText(text []byte) error {
	for i, name := range directionNames {
		if name == string(text) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown gaze direction %q", text)
}

// IsCenter reports whether the direction is the centre cell.
func (d Direction) IsCenter() bool {
	return d == Center
}

// DirectionThresholds are the ratio cut-offs for each direction component.
// Comparisons are strict: a ratio exactly on a cut-off is centre.
type DirectionThresholds struct {
	LeftAbove  float64 `json:"left_above"`  // horizontal > LeftAbove looks left
	RightBelow float64 `json:"right_below"` // horizontal < RightBelow looks right
	UpBelow    float64 `json:"up_below"`    // vertical < UpBelow looks up
	DownAbove  float64 `json:"down_above"`  // vertical > DownAbove looks down
}

// DefaultDirectionThresholds returns the stock cut-offs.
func DefaultDirectionThresholds() DirectionThresholds {
	return DirectionThresholds{
		LeftAbove:  0.55,
		RightBelow: 0.45,
		UpBelow:    0.40,
		DownAbove:  0.60,
	}
}

// Valid reports whether the cut-offs leave a non-empty centre band.
func (t DirectionThresholds) Valid() bool {
	return t.RightBelow <= t.LeftAbove && t.UpBelow <= t.DownAbove
}

// grid is indexed [vertical][horizontal] with 0 = up/left, 1 = centre,
// 2 = down/right.
var grid = [3][3]Direction{
	{UpLeft, Up, UpRight},
	{Left, Center, Right},
	{DownLeft, Down, DownRight},
}

// Classify maps averaged ratios to a direction with the default cut-offs.
func Classify(horizontal, vertical float64) Direction {
	return ClassifyWith(horizontal, vertical, DefaultDirectionThresholds())
}

// ClassifyWith maps averaged ratios to a direction. It is a pure function:
// no smoothing or hysteresis.
func ClassifyWith(horizontal, vertical float64, t DirectionThresholds) Direction {
	col := 1
	switch {
	case horizontal > t.LeftAbove:
		col = 0
	case horizontal < t.RightBelow:
		col = 2
	}

	row := 1
	switch {
	case vertical < t.UpBelow:
		row = 0
	case vertical > t.DownAbove:
		row = 2
	}

	return grid[row][col]
}
