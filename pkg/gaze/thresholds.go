package gaze

import "time"

// Thresholds is the screen calibration bundle: the ratio box that counts
// as "looking at the screen" plus the face width it was measured at.
// It is the only artifact that outlives a calibration session.
type Thresholds struct {
	HorizontalMin      float64   `json:"horizontal_min"`
	HorizontalMax      float64   `json:"horizontal_max"`
	VerticalMin        float64   `json:"vertical_min"`
	VerticalMax        float64   `json:"vertical_max"`
	ReferenceFaceWidth float64   `json:"reference_face_width"`
	CreatedAt          time.Time `json:"created_at"`
}

// DefaultThresholds is used when no calibration exists or the last one
// was invalid.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HorizontalMin:      0.35,
		HorizontalMax:      0.65,
		VerticalMin:        0.30,
		VerticalMax:        0.70,
		ReferenceFaceWidth: 0.25,
	}
}

// Valid reports whether both ranges are ordered and inside [0,1].
func (t Thresholds) Valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(t.HorizontalMin) && in(t.HorizontalMax) &&
		in(t.VerticalMin) && in(t.VerticalMax) &&
		t.HorizontalMin <= t.HorizontalMax &&
		t.VerticalMin <= t.VerticalMax &&
		t.ReferenceFaceWidth >= 0
}

// Contains reports whether r falls inside the box widened by margin on
// every side.
func (t Thresholds) Contains(r Ratio, margin float64) bool {
	return r.Horizontal >= t.HorizontalMin-margin &&
		r.Horizontal <= t.HorizontalMax+margin &&
		r.Vertical >= t.VerticalMin-margin &&
		r.Vertical <= t.VerticalMax+margin
}

// ScaleForFace widens or narrows the box when the face is closer or
// further than at calibration time. Ratios spread as the eye grows, so the
// box is scaled around its centre by faceWidth/ReferenceFaceWidth.
func (t Thresholds) ScaleForFace(faceWidth float64) Thresholds {
	if t.ReferenceFaceWidth <= 0 || faceWidth <= 0 {
		return t
	}
	k := faceWidth / t.ReferenceFaceWidth
	scale := func(lo, hi float64) (float64, float64) {
		mid := (lo + hi) / 2
		half := (hi - lo) / 2 * k
		return clamp01(mid - half), clamp01(mid + half)
	}
	out := t
	out.HorizontalMin, out.HorizontalMax = scale(t.HorizontalMin, t.HorizontalMax)
	out.VerticalMin, out.VerticalMax = scale(t.VerticalMin, t.VerticalMax)
	return out
}
