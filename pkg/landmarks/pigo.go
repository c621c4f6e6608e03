package landmarks

import (
	"fmt"
	"os"
	"sync"

	pigo "github.com/esimov/pigo/core"

	"github.com/teslashibe/go-gaze/pkg/debug"
	"github.com/teslashibe/go-gaze/pkg/pupil"
)

// perturbFact is the number of perturbations puploc averages per eye.
const perturbFact = 63

// pigoQualityScale maps pigo's detection score to roughly 0-1.
const pigoQualityScale = 100.0

// Pigo finds faces with the pigo facefinder cascade and eye centres with
// the puploc cascade. It needs no OpenCV. Like YuNet it only knows eye
// centres, so eye contours are synthesised.
type Pigo struct {
	face   *pigo.Pigo
	puploc *pigo.PuplocCascade
	config Config

	mu   sync.Mutex
	gray pupil.Buffer
}

// NewPigo unpacks both cascades from disk.
func NewPigo(cfg Config) (*Pigo, error) {
	faceData, err := os.ReadFile(cfg.FaceFinderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read facefinder cascade: %w", err)
	}
	face, err := pigo.NewPigo().Unpack(faceData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack facefinder cascade: %w", err)
	}

	puplocData, err := os.ReadFile(cfg.PuplocPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read puploc cascade: %w", err)
	}
	plc, err := pigo.NewPuplocCascade().UnpackCascade(puplocData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack puploc cascade: %w", err)
	}

	return &Pigo{face: face, puploc: plc, config: cfg}, nil
}

// Detect finds faces in the frame.
func (p *Pigo) Detect(frame *pupil.Frame) ([]Face, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.face == nil {
		return nil, fmt.Errorf("pigo provider closed")
	}
	gray, ok := pupil.ExtractGrayscale(frame, &p.gray)
	if !ok {
		return nil, fmt.Errorf("unreadable frame")
	}

	img := pigo.ImageParams{
		Pixels: gray.Pix,
		Rows:   gray.Height,
		Cols:   gray.Width,
		Dim:    gray.Stride,
	}
	params := pigo.CascadeParams{
		MinSize:     p.config.MinFaceSize,
		MaxSize:     p.config.MaxFaceSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: img,
	}

	dets := p.face.RunCascade(params, 0.0)
	dets = p.face.ClusterDetections(dets, 0.2)

	size := frame.Size()
	var faces []Face
	for _, det := range dets {
		conf := float64(det.Q) / pigoQualityScale
		if conf < p.config.ConfidenceThresh {
			continue
		}
		imageLeft, okL := p.eye(det, img, -1)
		imageRight, okR := p.eye(det, img, +1)
		if !okL || !okR {
			continue
		}
		if f, ok := pigoFace(det.Row, det.Col, det.Scale, imageLeft, imageRight, conf, size); ok {
			faces = append(faces, f)
		}
	}

	if len(faces) > 0 {
		debug.Log("👁️  pigo found %d face(s)\n", len(faces))
	}
	return faces, nil
}

// eye runs puploc from the usual eye offset within the face; dir is -1
// for the image-left eye and +1 for the image-right eye.
func (p *Pigo) eye(det pigo.Detection, img pigo.ImageParams, dir int) (pupil.Point, bool) {
	seed := pigo.Puploc{
		Row:      det.Row - int(0.085*float32(det.Scale)),
		Col:      det.Col + dir*int(0.185*float32(det.Scale)),
		Scale:    float32(det.Scale) * 0.4,
		Perturbs: perturbFact,
	}
	loc := p.puploc.RunDetector(seed, img, 0.0, false)
	if loc == nil || loc.Row <= 0 || loc.Col <= 0 {
		return pupil.Point{}, false
	}
	return pupil.Point{X: float64(loc.Col), Y: float64(loc.Row)}, true
}

// pigoFace builds a Face from a pigo detection (centre row/col and
// diameter) and both eye centres in pixels.
func pigoFace(row, col, scale int, imageLeft, imageRight pupil.Point, conf float64, size pupil.Size) (Face, bool) {
	d := distance(imageLeft, imageRight)
	if scale <= 0 || d <= 0 {
		return Face{}, false
	}
	half := float64(scale) / 2
	box := pixelBox(float64(col)-half, float64(row)-half, float64(scale), float64(scale), size)

	return Face{
		Box:        box,
		LeftEye:    normalize(EyeContour(imageRight, d), box, size),
		RightEye:   normalize(EyeContour(imageLeft, d), box, size),
		Pose:       Pose{Roll: rollFromEyes(imageLeft, imageRight)},
		Confidence: conf,
	}, true
}

// Close releases the cascades.
func (p *Pigo) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.face = nil
	p.puploc = nil
	p.gray.Release()
	return nil
}

// New creates the provider named by backend ("yunet" or "pigo").
func New(backend string, cfg Config) (Provider, error) {
	switch backend {
	case "", "yunet":
		y, err := NewYuNet(cfg)
		if err != nil {
			return nil, err
		}
		return y, nil
	case "pigo":
		p, err := NewPigo(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown landmark backend %q", backend)
}
