package landmarks

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gaze/pkg/debug"
	"github.com/teslashibe/go-gaze/pkg/pupil"
)

// YuNet uses OpenCV's FaceDetectorYN. It reports five keypoints per face;
// eye contours are synthesised around the two eye keypoints.
type YuNet struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the YuNet ONNX model.
func NewYuNet(cfg Config) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is updated per frame
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector, config: cfg}, nil
}

// Detect finds faces in the frame.
func (y *YuNet) Detect(frame *pupil.Frame) ([]Face, error) {
	img, err := frameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	y.detector.Detect(img, &out)

	size := frame.Size()
	rows := make([][15]float64, out.Rows())
	for r := range rows {
		for c := 0; c < 15; c++ {
			rows[r][c] = float64(out.GetFloatAt(r, c))
		}
	}
	faces := facesFromYuNet(rows, size)

	if len(faces) > 0 {
		debug.Log("👁️  YuNet found %d face(s)\n", len(faces))
	}
	return faces, nil
}

// Close releases the detector resources.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}

// facesFromYuNet decodes YuNet output rows:
// 0-3 box (x, y, w, h in pixels), 4-13 five keypoints (right eye, left eye,
// nose tip, right and left mouth corner), 14 score.
func facesFromYuNet(rows [][15]float64, size pupil.Size) []Face {
	var faces []Face
	for _, row := range rows {
		if row[2] <= 0 || row[3] <= 0 {
			continue
		}
		rightEye := pupil.Point{X: row[4], Y: row[5]} // image left
		leftEye := pupil.Point{X: row[6], Y: row[7]}  // image right
		nose := pupil.Point{X: row[8], Y: row[9]}

		d := distance(rightEye, leftEye)
		if d <= 0 {
			continue
		}
		box := pixelBox(row[0], row[1], row[2], row[3], size)

		faces = append(faces, Face{
			Box:        box,
			LeftEye:    normalize(EyeContour(leftEye, d), box, size),
			RightEye:   normalize(EyeContour(rightEye, d), box, size),
			Pose:       poseFromKeypoints(rightEye, leftEye, nose),
			Confidence: row[14],
		})
	}
	return faces
}

// poseFromKeypoints estimates head pose from the eyes and nose. Yaw and
// pitch come from the nose offset against the eye midpoint, scaled by the
// eye distance.
func poseFromKeypoints(imageLeftEye, imageRightEye, nose pupil.Point) Pose {
	d := distance(imageLeftEye, imageRightEye)
	if d == 0 {
		return Pose{}
	}
	midX := (imageLeftEye.X + imageRightEye.X) / 2
	midY := (imageLeftEye.Y + imageRightEye.Y) / 2

	// Nose sits about half an eye distance below the eyes when level
	dx := (nose.X - midX) / d
	dy := (nose.Y-midY)/d - 0.5

	return Pose{
		Yaw:   math.Asin(clampUnit(dx*2)) * 180 / math.Pi,
		Pitch: math.Asin(clampUnit(dy*2)) * 180 / math.Pi,
		Roll:  rollFromEyes(imageLeftEye, imageRightEye),
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// frameToMat converts a frame to a BGR Mat for OpenCV.
func frameToMat(frame *pupil.Frame) (gocv.Mat, error) {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return gocv.Mat{}, fmt.Errorf("empty frame")
	}

	switch frame.Format {
	case pupil.FormatBGRA:
		return planeToMat(frame, 4, gocv.MatTypeCV8UC4, gocv.ColorBGRAToBGR)
	case pupil.FormatYCbCr420FullRange, pupil.FormatYCbCr420VideoRange:
		return planeToMat(frame, 1, gocv.MatTypeCV8UC1, gocv.ColorGrayToBGR)
	default:
		if frame.Image == nil {
			return gocv.Mat{}, fmt.Errorf("generic frame without image")
		}
		mat, err := gocv.ImageToMatRGB(frame.Image)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("convert image: %w", err)
		}
		return mat, nil
	}
}

// planeToMat copies the first plane, dropping row padding, and converts it
// to BGR.
func planeToMat(frame *pupil.Frame, bpp int, mt gocv.MatType, code gocv.ColorConversionCode) (gocv.Mat, error) {
	if len(frame.Planes) == 0 {
		return gocv.Mat{}, fmt.Errorf("frame has no planes")
	}
	p := frame.Planes[0]
	row := frame.Width * bpp
	stride := p.Stride
	if stride == 0 {
		stride = row
	}
	if stride < row || len(p.Data) < stride*(frame.Height-1)+row {
		return gocv.Mat{}, fmt.Errorf("plane too small for %dx%d", frame.Width, frame.Height)
	}

	packed := p.Data
	if stride != row {
		packed = make([]byte, row*frame.Height)
		for y := 0; y < frame.Height; y++ {
			copy(packed[y*row:(y+1)*row], p.Data[y*stride:y*stride+row])
		}
	}

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, mt, packed)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("wrap frame: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, code)
	return dst, nil
}
