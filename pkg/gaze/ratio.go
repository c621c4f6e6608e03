package gaze

import "github.com/teslashibe/go-gaze/pkg/pupil"

// Ratio is a pupil position normalised to its eye box: 0 is the left/top
// edge of the region in frame coordinates, 1 the right/bottom edge.
type Ratio struct {
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
}

// EyeRatio normalises a pupil (local to region) by the region size.
func EyeRatio(p pupil.Point, region pupil.EyeRegion) (Ratio, bool) {
	if region.Frame.W <= 0 || region.Frame.H <= 0 {
		return Ratio{}, false
	}
	return Ratio{
		Horizontal: clamp01(p.X / region.Frame.W),
		Vertical:   clamp01(p.Y / region.Frame.H),
	}, true
}

// ResultRatio is EyeRatio for a detector result; nil yields no ratio.
func ResultRatio(r *pupil.EyeResult) *Ratio {
	if r == nil {
		return nil
	}
	ratio, ok := EyeRatio(r.Pupil, r.Region)
	if !ok {
		return nil
	}
	return &ratio
}

// Average combines both eyes. With one eye missing the other is used alone.
func Average(left, right *Ratio) (Ratio, bool) {
	switch {
	case left != nil && right != nil:
		return Ratio{
			Horizontal: (left.Horizontal + right.Horizontal) / 2,
			Vertical:   (left.Vertical + right.Vertical) / 2,
		}, true
	case left != nil:
		return *left, true
	case right != nil:
		return *right, true
	}
	return Ratio{}, false
}

// Direction classifies the ratio with the default cut-offs.
func (r Ratio) Direction() Direction {
	return Classify(r.Horizontal, r.Vertical)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
