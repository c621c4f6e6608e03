// Package landmarks adapts face detectors to the eye landmarks the pupil
// pipeline consumes.
//
// Faces are reported the way the pupil pipeline expects them: the box is
// normalised to the frame with a bottom-left origin, and eye points are
// normalised to the box. LeftEye and RightEye are the subject's eyes, so
// LeftEye appears on the right of an unmirrored image.
package landmarks

import (
	"math"

	"github.com/teslashibe/go-gaze/pkg/pupil"
)

// Pose is the head orientation in degrees.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Face is one detected face.
type Face struct {
	Box        pupil.Rect    `json:"box"`
	LeftEye    []pupil.Point `json:"left_eye"`
	RightEye   []pupil.Point `json:"right_eye"`
	Pose       Pose          `json:"pose"`
	Confidence float64       `json:"confidence"`
}

// Area returns the area of the normalised box.
func (f Face) Area() float64 {
	return f.Box.W * f.Box.H
}

// Width is the face width as a fraction of the frame width.
func (f Face) Width() float64 {
	return f.Box.W
}

// Input converts the face for pupil.Detector.DetectFrame.
func (f Face) Input() pupil.FaceInput {
	return pupil.FaceInput{FaceBox: f.Box, Left: f.LeftEye, Right: f.RightEye}
}

// Provider is the interface for landmark backends.
type Provider interface {
	// Detect finds faces in the frame
	Detect(frame *pupil.Frame) ([]Face, error)

	// Close releases resources
	Close() error
}

// Config holds provider configuration.
type Config struct {
	ModelPath        string  // YuNet ONNX model
	FaceFinderPath   string  // pigo facefinder cascade
	PuplocPath       string  // pigo puploc cascade
	ConfidenceThresh float64 // Minimum confidence (0-1)
	InputWidth       int     // YuNet initial input width
	InputHeight      int     // YuNet initial input height
	MinFaceSize      int     // pigo minimum face size in pixels
	MaxFaceSize      int     // pigo maximum face size in pixels
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		FaceFinderPath:   "models/facefinder",
		PuplocPath:       "models/puploc",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
		MinFaceSize:      80,
		MaxFaceSize:      1000,
	}
}

// SelectBest picks the face to track.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence * 0.7
		if maxArea > 0 {
			score += faces[i].Area() / maxArea * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}

// pixelBox converts a top-left pixel box into a normalised bottom-left box.
func pixelBox(x, y, w, h float64, size pupil.Size) pupil.Rect {
	return pupil.Rect{
		X: x / size.Width,
		Y: 1 - (y+h)/size.Height,
		W: w / size.Width,
		H: h / size.Height,
	}
}

// normalize converts top-left pixel points into points relative to box.
// It is the inverse of pupil.TransformPoints.
func normalize(points []pupil.Point, box pupil.Rect, size pupil.Size) []pupil.Point {
	out := make([]pupil.Point, len(points))
	if box.W <= 0 || box.H <= 0 {
		return out
	}
	for i, p := range points {
		out[i] = pupil.Point{
			X: (p.X/size.Width - box.X) / box.W,
			Y: ((1 - p.Y/size.Height) - box.Y) / box.H,
		}
	}
	return out
}

// Eye shape relative to the distance between the eye centres.
const (
	eyeHalfWidth  = 0.25
	eyeHalfHeight = 0.12
)

// EyeContour synthesises a six point eye outline around an eye centre for
// detectors that only report eye keypoints. interocular is the distance
// between both eye centres in pixels.
func EyeContour(center pupil.Point, interocular float64) []pupil.Point {
	hw := interocular * eyeHalfWidth
	hh := interocular * eyeHalfHeight
	return []pupil.Point{
		{X: center.X - hw, Y: center.Y},
		{X: center.X - hw/2, Y: center.Y - hh},
		{X: center.X + hw/2, Y: center.Y - hh},
		{X: center.X + hw, Y: center.Y},
		{X: center.X + hw/2, Y: center.Y + hh},
		{X: center.X - hw/2, Y: center.Y + hh},
	}
}

// rollFromEyes is the in-plane head rotation implied by the eye centres
// (image-left eye first), in degrees.
func rollFromEyes(imageLeft, imageRight pupil.Point) float64 {
	return math.Atan2(imageRight.Y-imageLeft.Y, imageRight.X-imageLeft.X) * 180 / math.Pi
}

func distance(a, b pupil.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
