package pupil

import (
	"github.com/teslashibe/go-gaze/pkg/debug"
)

// EyeInput is one eye's landmarks as delivered by the landmark detector:
// points normalised to FaceBox, FaceBox normalised to the frame.
type EyeInput struct {
	Side    Side
	Points  []Point
	FaceBox Rect
}

// FaceInput carries both eyes of one face.
type FaceInput struct {
	FaceBox Rect
	Left    []Point
	Right   []Point
}

// EyeResult is the pupil estimate for one eye.
type EyeResult struct {
	Side       Side      `json:"side"`
	Pupil      Point     `json:"pupil"` // local to Region.Frame
	Region     EyeRegion `json:"region"`
	Threshold  int       `json:"threshold"`
	Cached     bool      `json:"cached"`
	FrameIndex uint64    `json:"frame_index"`
}

// FrameResult bundles both eyes of one camera frame.
type FrameResult struct {
	FrameIndex uint64     `json:"frame_index"`
	Processed  bool       `json:"processed"`
	Left       *EyeResult `json:"left,omitempty"`
	Right      *EyeResult `json:"right,omitempty"`
}

type cachedPupil struct {
	pupil     Point
	threshold int
	valid     bool
}

// Detector runs the pupil pipeline for one tracking session.
//
// A Detector is driven from the capture goroutine and is not safe for
// concurrent use. Its Calibrator is, and may be read from anywhere.
type Detector struct {
	config     Config
	pool       *BufferPool
	calibrator *Calibrator

	frames uint64
	cache  [sideCount]cachedPupil
	points [sideCount][]Point // frame-pixel landmarks, reused per eye
}

// NewDetector creates a detector with its own buffers and calibrator.
func NewDetector(config Config) *Detector {
	return &Detector{
		config:     config,
		pool:       NewBufferPool(),
		calibrator: NewCalibrator(config.CalibrationFrames, config.IrisCoverage),
	}
}

// Calibrator returns the adaptive threshold calibrator.
func (d *Detector) Calibrator() *Calibrator {
	return d.calibrator
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// NextFrame returns the index for a new camera frame and advances the
// counter. Call once per frame, not per eye.
func (d *Detector) NextFrame() uint64 {
	idx := d.frames
	d.frames++
	return idx
}

// ShouldProcess reports whether a frame index runs the full pipeline.
func (d *Detector) ShouldProcess(frameIndex uint64) bool {
	skip := uint64(d.config.FrameSkipCount)
	if skip <= 1 {
		return true
	}
	return frameIndex%skip == 0
}

// DetectFrame processes both eyes of a frame under a single frame index,
// extracting the grayscale image at most once.
func (d *Detector) DetectFrame(frame *Frame, face FaceInput) FrameResult {
	idx := d.NextFrame()
	fc := &frameContext{frame: frame}
	res := FrameResult{FrameIndex: idx, Processed: d.ShouldProcess(idx)}

	if r, ok := d.detect(fc, EyeInput{Side: Left, Points: face.Left, FaceBox: face.FaceBox}, idx); ok {
		res.Left = &r
	}
	if r, ok := d.detect(fc, EyeInput{Side: Right, Points: face.Right, FaceBox: face.FaceBox}, idx); ok {
		res.Right = &r
	}
	return res
}

// DetectEye processes a single eye for a frame index obtained from
// NextFrame. Both eyes of one frame must use the same index.
func (d *Detector) DetectEye(frame *Frame, in EyeInput, frameIndex uint64) (EyeResult, bool) {
	return d.detect(&frameContext{frame: frame}, in, frameIndex)
}

func (d *Detector) detect(fc *frameContext, in EyeInput, frameIndex uint64) (EyeResult, bool) {
	frame := fc.frame
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return EyeResult{}, false
	}
	if len(in.Points) < MinEyePoints {
		return EyeResult{}, false
	}

	i := in.Side.index()
	points := AppendTransformedPoints(d.points[i][:0], in.Points, in.FaceBox, frame.Size())
	d.points[i] = points
	region, ok := BuildEyeRegion(points, frame.Size())
	if !ok {
		return EyeResult{}, false
	}
	if region.Frame.W < float64(d.config.MinRegionSide) || region.Frame.H < float64(d.config.MinRegionSide) {
		debug.PupilLog("👁️  [%s] eye region too small (%.0fx%.0f)\n", in.Side, region.Frame.W, region.Frame.H)
		return EyeResult{}, false
	}

	if !d.ShouldProcess(frameIndex) {
		c := d.cache[i]
		if !c.valid {
			return EyeResult{}, false
		}
		return EyeResult{
			Side:       in.Side,
			Pupil:      c.pupil,
			Region:     region,
			Threshold:  c.threshold,
			Cached:     true,
			FrameIndex: frameIndex,
		}, true
	}

	gray, ok := fc.grayscale(d.pool.Gray())
	if !ok {
		return EyeResult{}, false
	}

	eye, ok := IsolateEye(gray, points, region, d.pool.Eye(in.Side))
	if !ok {
		return EyeResult{}, false
	}

	threshold, ok := d.threshold(in.Side, eye)
	if !ok {
		return EyeResult{}, false
	}

	bin := Binarize(eye, threshold, d.pool.Binary(in.Side))
	pupil, ok := Localize(bin, d.config.DarkCutoff, d.config.MinDarkPixels)
	if !ok {
		debug.PupilLog("👁️  [%s] no pupil at threshold %d\n", in.Side, threshold)
		return EyeResult{}, false
	}

	d.cache[i] = cachedPupil{pupil: pupil, threshold: threshold, valid: true}
	debug.PupilLog("👁️  [%s] frame %d pupil (%.1f, %.1f) t=%d\n", in.Side, frameIndex, pupil.X, pupil.Y, threshold)

	return EyeResult{
		Side:       in.Side,
		Pupil:      pupil,
		Region:     region,
		Threshold:  threshold,
		FrameIndex: frameIndex,
	}, true
}

// threshold picks the effective binarisation threshold: the fixed value if
// configured, otherwise the calibrator's (this frame's best until converged).
func (d *Detector) threshold(side Side, eye Gray) (int, bool) {
	if d.config.FixedThreshold > 0 {
		return d.config.FixedThreshold, true
	}
	if t, ok := d.calibrator.Evaluate(side, eye); ok {
		return t, true
	}
	// Eye too small for the inset search; fall back to what we learned.
	return d.calibrator.Threshold(side)
}

// LastPupil returns the cached pupil for a side.
func (d *Detector) LastPupil(side Side) (Point, bool) {
	c := d.cache[side.index()]
	return c.pupil, c.valid
}

// Reset starts a new session: frame counter and cached pupils are cleared,
// calibrator history only when retainCalibration is false.
func (d *Detector) Reset(retainCalibration bool) {
	d.frames = 0
	d.cache = [sideCount]cachedPupil{}
	if !retainCalibration {
		d.calibrator.Reset()
	}
}

// Close releases the pixel buffers.
func (d *Detector) Close() {
	d.pool.Release()
}

// frameContext extracts grayscale lazily so skipped frames never pay for it
// and both eyes of a processed frame share one extraction.
type frameContext struct {
	frame     *Frame
	gray      Gray
	extracted bool
	ok        bool
}

func (fc *frameContext) grayscale(dst *Buffer) (Gray, bool) {
	if !fc.extracted {
		fc.gray, fc.ok = ExtractGrayscale(fc.frame, dst)
		fc.extracted = true
	}
	return fc.gray, fc.ok
}
