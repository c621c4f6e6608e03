package pupil

import (
	"math"
	"testing"
)

const (
	testFrameW = 100
	testFrameH = 80
)

// eyeHexagon is an eye contour in frame pixels, well inside the test frame.
var eyeHexagon = []Point{
	{X: 20.5, Y: 35.5}, {X: 30.5, Y: 22.5}, {X: 50.5, Y: 22.5},
	{X: 60.5, Y: 35.5}, {X: 50.5, Y: 48.5}, {X: 30.5, Y: 48.5},
}

// toLandmarks converts frame pixels into detector-style landmarks for a
// full-frame face box (normalised, bottom-left origin).
func toLandmarks(pixels []Point, dx float64) []Point {
	out := make([]Point, len(pixels))
	for i, p := range pixels {
		out[i] = Point{X: (p.X + dx) / testFrameW, Y: 1 - p.Y/testFrameH}
	}
	return out
}

// bgraFrame builds a BGRA frame at luminance 200 with a black 6x6 block at (x0,y0).
func bgraFrame(x0, y0 int) *Frame {
	data := make([]byte, testFrameW*testFrameH*4)
	for y := 0; y < testFrameH; y++ {
		for x := 0; x < testFrameW; x++ {
			v := byte(200)
			if x >= x0 && x < x0+6 && y >= y0 && y < y0+6 {
				v = 0
			}
			i := (y*testFrameW + x) * 4
			data[i], data[i+1], data[i+2], data[i+3] = v, v, v, 255
		}
	}
	return &Frame{
		Width:  testFrameW,
		Height: testFrameH,
		Format: FormatBGRA,
		Planes: []Plane{{Data: data, Stride: testFrameW * 4}},
	}
}

func fullFace(dx float64) FaceInput {
	return FaceInput{
		FaceBox: Rect{X: 0, Y: 0, W: 1, H: 1},
		Left:    toLandmarks(eyeHexagon, dx),
		Right:   toLandmarks(eyeHexagon, dx),
	}
}

func TestDetector_EndToEnd(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		threshold int
	}{
		{
			name: "fixed threshold",
			config: func() Config {
				cfg := DefaultConfig()
				cfg.FixedThreshold = 100
				return cfg
			}(),
			threshold: 100,
		},
		{
			// Only the block is dark, so every candidate ties and the
			// lowest one wins.
			name:      "adaptive threshold",
			config:    DefaultConfig(),
			threshold: ThresholdMin,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDetector(tc.config)
			defer d.Close()

			res := d.DetectFrame(bgraFrame(37, 32), fullFace(0))
			if !res.Processed || res.FrameIndex != 0 {
				t.Fatalf("expected processed frame 0, got %+v", res)
			}
			if res.Left == nil || res.Right == nil {
				t.Fatal("expected both eyes")
			}

			// Region origin is (15,17); block centre is (39.5,34.5)
			left := res.Left
			if left.Region.Origin != (Point{X: 15, Y: 17}) {
				t.Errorf("origin: got %+v", left.Region.Origin)
			}
			if math.Abs(left.Pupil.X-24.5) > 1e-9 || math.Abs(left.Pupil.Y-17.5) > 1e-9 {
				t.Errorf("pupil: got (%.3f, %.3f), want (24.5, 17.5)", left.Pupil.X, left.Pupil.Y)
			}
			if left.Threshold != tc.threshold {
				t.Errorf("threshold: got %d, want %d", left.Threshold, tc.threshold)
			}
			if left.Cached {
				t.Error("processed result must not be marked cached")
			}
		})
	}
}

func TestDetector_FrameSkipReturnsCachedPupil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSkipCount = 10
	d := NewDetector(cfg)

	frame := bgraFrame(37, 32)
	face := fullFace(0)

	first := d.DetectFrame(frame, face)
	if first.Left == nil || first.Left.Cached {
		t.Fatalf("frame 0 must be processed, got %+v", first.Left)
	}

	for i := 1; i < 10; i++ {
		res := d.DetectFrame(frame, face)
		if res.FrameIndex != uint64(i) {
			t.Fatalf("frame index: got %d, want %d", res.FrameIndex, i)
		}
		if res.Processed {
			t.Fatalf("frame %d should be skipped", i)
		}
		for _, eye := range []*EyeResult{res.Left, res.Right} {
			if eye == nil || !eye.Cached {
				t.Fatalf("frame %d: expected cached result, got %+v", i, eye)
			}
			if eye.Pupil != first.Left.Pupil {
				t.Errorf("frame %d: pupil changed to %+v", i, eye.Pupil)
			}
		}
	}

	if res := d.DetectFrame(frame, face); !res.Processed || res.Left.Cached {
		t.Errorf("frame 10 should be processed, got %+v", res)
	}
}

func TestDetector_SkippedFrameRejectsSmallRegion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSkipCount = 10
	d := NewDetector(cfg)

	first := d.DetectFrame(bgraFrame(37, 32), fullFace(0))
	if first.Left == nil {
		t.Fatal("frame 0 must find a pupil")
	}

	// 3px eye in the corner pads out to an 8x8 region.
	tiny := toLandmarks([]Point{
		{X: 0, Y: 1.5}, {X: 1, Y: 0}, {X: 2, Y: 0},
		{X: 3, Y: 1.5}, {X: 2, Y: 3}, {X: 1, Y: 3},
	}, 0)
	res := d.DetectFrame(bgraFrame(37, 32), FaceInput{FaceBox: Rect{W: 1, H: 1}, Left: tiny, Right: tiny})
	if res.Processed {
		t.Fatal("frame 1 should be skipped")
	}
	if res.Left != nil || res.Right != nil {
		t.Errorf("too-small region must not return the cached pupil, got %+v %+v", res.Left, res.Right)
	}

	// Cache survives the miss.
	if again := d.DetectFrame(bgraFrame(37, 32), fullFace(0)); again.Left == nil || !again.Left.Cached {
		t.Errorf("expected cached pupil once the region is usable again, got %+v", again.Left)
	}
}

func TestDetector_SkippedFrameTracksRegion(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.DetectFrame(bgraFrame(37, 32), fullFace(0))
	moved := d.DetectFrame(bgraFrame(47, 32), fullFace(10))

	if moved.Left == nil || !moved.Left.Cached {
		t.Fatalf("expected cached result, got %+v", moved.Left)
	}
	if moved.Left.Region.Origin.X != 25 {
		t.Errorf("region should follow landmarks: origin %+v", moved.Left.Region.Origin)
	}
}

func TestDetector_SkippedFrameWithoutCache(t *testing.T) {
	d := NewDetector(DefaultConfig())

	in := EyeInput{Side: Left, Points: toLandmarks(eyeHexagon, 0), FaceBox: Rect{W: 1, H: 1}}
	if _, ok := d.DetectEye(bgraFrame(37, 32), in, 3); ok {
		t.Error("skipped frame with no cached pupil must yield nothing")
	}
}

func TestDetector_FailureKeepsCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSkipCount = 1
	cfg.FixedThreshold = 100
	d := NewDetector(cfg)

	first := d.DetectFrame(bgraFrame(37, 32), fullFace(0))
	if first.Left == nil {
		t.Fatal("expected detection")
	}

	// Block moved outside the eye polygon: nothing dark left to find
	miss := d.DetectFrame(bgraFrame(2, 2), fullFace(0))
	if miss.Left != nil {
		t.Fatalf("expected no detection, got %+v", miss.Left)
	}

	last, ok := d.LastPupil(Left)
	if !ok || last != first.Left.Pupil {
		t.Errorf("cache should survive a miss: got %+v ok=%v", last, ok)
	}
}

func TestDetector_RejectsBadInput(t *testing.T) {
	d := NewDetector(DefaultConfig())
	frame := bgraFrame(37, 32)

	tiny := []Point{{X: 40, Y: 40}, {X: 41, Y: 40}, {X: 41, Y: 41}, {X: 40, Y: 41}, {X: 40.5, Y: 39.9}, {X: 40.5, Y: 41.1}}

	tests := []struct {
		name  string
		frame *Frame
		in    EyeInput
	}{
		{
			name:  "too few points",
			frame: frame,
			in:    EyeInput{Points: toLandmarks(eyeHexagon[:5], 0), FaceBox: Rect{W: 1, H: 1}},
		},
		{
			name:  "nil frame",
			frame: nil,
			in:    EyeInput{Points: toLandmarks(eyeHexagon, 0), FaceBox: Rect{W: 1, H: 1}},
		},
		{
			name:  "region collapses at image edge",
			frame: frame,
			in:    EyeInput{Points: toLandmarks(eyeHexagon, 500), FaceBox: Rect{W: 1, H: 1}},
		},
		{
			// The whole frame is smaller than the 10px gate
			name:  "region below minimum size",
			frame: &Frame{Width: 8, Height: 8, Format: FormatBGRA, Planes: []Plane{{Data: make([]byte, 8*8*4), Stride: 32}}},
			in:    EyeInput{Points: toLandmarks(tiny, 0), FaceBox: Rect{W: 1, H: 1}},
		},
		{
			name:  "unreadable buffer",
			frame: &Frame{Width: testFrameW, Height: testFrameH, Format: FormatBGRA},
			in:    EyeInput{Points: toLandmarks(eyeHexagon, 0), FaceBox: Rect{W: 1, H: 1}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := d.DetectEye(tc.frame, tc.in, 0); ok {
				t.Error("expected no detection")
			}
		})
	}
}

func TestDetector_ResetPolicy(t *testing.T) {
	tests := []struct {
		name          string
		retain        bool
		expectHistory bool
	}{
		{name: "retain calibration", retain: true, expectHistory: true},
		{name: "clear calibration", retain: false, expectHistory: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDetector(DefaultConfig())
			d.DetectFrame(bgraFrame(37, 32), fullFace(0))
			d.DetectFrame(bgraFrame(37, 32), fullFace(0))

			d.Reset(tc.retain)

			if idx := d.NextFrame(); idx != 0 {
				t.Errorf("frame counter not reset: %d", idx)
			}
			if _, ok := d.LastPupil(Left); ok {
				t.Error("cached pupil survived reset")
			}
			_, ok := d.Calibrator().Threshold(Left)
			if ok != tc.expectHistory {
				t.Errorf("calibrator history present=%v, want %v", ok, tc.expectHistory)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default": DefaultConfig(),
		"fast":    FastConfig(),
		"precise": PreciseConfig(),
	} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}

	bad := DefaultConfig()
	bad.FrameSkipCount = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero frame skip")
	}

	bad = DefaultConfig()
	bad.IrisCoverage = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for coverage outside (0,1)")
	}
}
