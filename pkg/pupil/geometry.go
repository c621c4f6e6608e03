// Package pupil locates pupils inside eye regions using classical pixel
// operations: grayscale extraction, polygon masking, adaptive thresholding
// and dark-pixel centroids.
package pupil

import "math"

// RegionPadding is the margin in pixels added around the eye landmarks.
const RegionPadding = 5.0

// MinEyePoints is the smallest landmark set that describes an eye contour.
const MinEyePoints = 6

// Side identifies an eye.
type Side int

const (
	Left Side = iota
	Right
)

const sideCount = 2

func (s Side) index() int {
	if s == Right {
		return 1
	}
	return 0
}

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Point is a 2D position. Its coordinate space depends on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is an image size in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.W }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// EyeRegion is the padded bounding box of one eye in source-frame pixels.
type EyeRegion struct {
	Frame  Rect  `json:"frame"`
	Center Point `json:"center"` // local to Frame
	Origin Point `json:"origin"` // Frame's top-left in the source frame
}

// TransformPoints maps landmark points, normalised to a face box that is
// itself normalised to the frame, into absolute frame pixels.
// Landmarks use a bottom-left origin, frames a top-left one, so Y is flipped.
func TransformPoints(points []Point, faceBox Rect, size Size) []Point {
	return AppendTransformedPoints(make([]Point, 0, len(points)), points, faceBox, size)
}

// AppendTransformedPoints is TransformPoints appending to dst, so a caller
// holding a slice across frames does not allocate once it is large enough.
func AppendTransformedPoints(dst, points []Point, faceBox Rect, size Size) []Point {
	for _, p := range points {
		x := faceBox.X + p.X*faceBox.W
		y := faceBox.Y + p.Y*faceBox.H
		dst = append(dst, Point{
			X: x * size.Width,
			Y: (1 - y) * size.Height,
		})
	}
	return dst
}

// BuildEyeRegion computes the padded, image-clamped box around eye points.
// Returns false only for an empty point set.
func BuildEyeRegion(points []Point, size Size) (EyeRegion, bool) {
	if len(points) == 0 {
		return EyeRegion{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	// Snap to whole pixels so the region maps 1:1 onto buffer indices.
	minX = clamp(math.Floor(minX-RegionPadding), 0, size.Width)
	minY = clamp(math.Floor(minY-RegionPadding), 0, size.Height)
	maxX = clamp(math.Ceil(maxX+RegionPadding), 0, size.Width)
	maxY = clamp(math.Ceil(maxY+RegionPadding), 0, size.Height)

	frame := Rect{
		X: minX,
		Y: minY,
		W: math.Max(0, maxX-minX),
		H: math.Max(0, maxY-minY),
	}
	return EyeRegion{
		Frame:  frame,
		Center: Point{X: frame.W / 2, Y: frame.H / 2},
		Origin: Point{X: frame.X, Y: frame.Y},
	}, true
}

// pixelBounds converts the region into integer pixel bounds.
func (r EyeRegion) pixelBounds() (x0, y0, w, h int) {
	x0 = int(math.Floor(r.Frame.X))
	y0 = int(math.Floor(r.Frame.Y))
	x1 := int(math.Floor(r.Frame.MaxX()))
	y1 := int(math.Floor(r.Frame.MaxY()))
	return x0, y0, x1 - x0, y1 - y0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
