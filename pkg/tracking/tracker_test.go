package tracking

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/landmarks"
	"github.com/teslashibe/go-gaze/pkg/pupil"
	"github.com/teslashibe/go-gaze/pkg/store"
)

const (
	frameW = 100
	frameH = 80
)

// eye contour in frame pixels; both eyes share it in these tests
var eyeHexagon = []pupil.Point{
	{X: 20.5, Y: 35.5}, {X: 30.5, Y: 22.5}, {X: 50.5, Y: 22.5},
	{X: 60.5, Y: 35.5}, {X: 50.5, Y: 48.5}, {X: 30.5, Y: 48.5},
}

func testFace() *landmarks.Face {
	pts := make([]pupil.Point, len(eyeHexagon))
	for i, p := range eyeHexagon {
		pts[i] = pupil.Point{X: p.X / frameW, Y: 1 - p.Y/frameH}
	}
	return &landmarks.Face{
		Box:        pupil.Rect{X: 0, Y: 0, W: 1, H: 1},
		LeftEye:    pts,
		RightEye:   pts,
		Confidence: 0.9,
	}
}

// testFrame is a bright BGRA frame with a black 6x6 pupil at (x0,y0).
func testFrame(x0, y0 int) *pupil.Frame {
	data := make([]byte, frameW*frameH*4)
	for y := 0; y < frameH; y++ {
		for x := 0; x < frameW; x++ {
			v := byte(200)
			if x >= x0 && x < x0+6 && y >= y0 && y < y0+6 {
				v = 0
			}
			i := (y*frameW + x) * 4
			data[i], data[i+1], data[i+2], data[i+3] = v, v, v, 255
		}
	}
	return &pupil.Frame{
		Width:  frameW,
		Height: frameH,
		Format: pupil.FormatBGRA,
		Planes: []pupil.Plane{{Data: data, Stride: frameW * 4}},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Pupil.FrameSkipCount = 1
	cfg.ScaleForFace = false
	cfg.LookingAfter = 200 * time.Millisecond
	cfg.AwayAfter = 500 * time.Millisecond
	cfg.FrameInterval = time.Millisecond
	cfg.Screen.PauseDuration = 0
	cfg.Screen.CountdownDuration = 0
	cfg.Screen.SamplesPerTarget = 2
	cfg.NinePoint.Countdown = 0
	cfg.NinePoint.SamplesPerStep = 2
	return cfg
}

func newTestTracker(t *testing.T, cfg Config, st store.Store) *Tracker {
	t.Helper()
	tr, err := New(cfg, nil, nil, st)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func newTestStore(t *testing.T) *store.JSONStore {
	t.Helper()
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), "calibrations.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return st
}

func TestTracker_ProcessFrame_CenteredGaze(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)
	start := time.Unix(1000, 0)

	var u Update
	for i := 0; i < 4; i++ {
		u = tr.ProcessFrame(testFrame(37, 32), testFace(), start.Add(time.Duration(i)*100*time.Millisecond))
	}

	if u.Ratio == nil {
		t.Fatal("expected a gaze ratio")
	}
	// pupil (24.5,17.5) in a 51x37 region
	if math.Abs(u.Ratio.Horizontal-24.5/51) > 1e-9 || math.Abs(u.Ratio.Vertical-17.5/37) > 1e-9 {
		t.Errorf("ratio: got %+v", *u.Ratio)
	}
	if u.Direction == nil || *u.Direction != gaze.Center {
		t.Errorf("direction: got %v, want center", u.Direction)
	}
	if !u.OnScreen {
		t.Error("centred gaze should be on screen")
	}
	if u.Attention != AttentionLooking {
		t.Errorf("attention: got %s, want looking", u.Attention)
	}
	if u.FrameIndex != 3 || !u.Processed {
		t.Errorf("frame: got index %d processed %v", u.FrameIndex, u.Processed)
	}
}

func TestTracker_Listeners(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)

	var updates, frames int
	var seen *pupil.Frame
	tr.OnUpdate(func(Update) { updates++ })
	tr.OnFrame(func(f *pupil.Frame, u Update) {
		frames++
		seen = f
	})

	frame := testFrame(37, 32)
	tr.ProcessFrame(frame, testFace(), time.Unix(1000, 0))
	tr.ProcessFrame(testFrame(37, 32), nil, time.Unix(1001, 0))

	if updates != 2 || frames != 2 {
		t.Errorf("listeners: got %d updates, %d frames", updates, frames)
	}
	if seen == frame {
		t.Error("last frame hook should see the latest frame")
	}
}

func TestTracker_ProcessFrame_OffScreen(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)
	now := time.Unix(1000, 0)

	// pupil centre (27,34.5) is far left of the default box
	u := tr.ProcessFrame(testFrame(24, 32), testFace(), now)
	if u.Ratio == nil {
		t.Fatal("expected a gaze ratio")
	}
	if u.Ratio.Horizontal >= 0.3 {
		t.Fatalf("expected a low horizontal ratio, got %.3f", u.Ratio.Horizontal)
	}
	if u.OnScreen {
		t.Error("gaze outside the box must not be on screen")
	}
}

func TestTracker_HeadYaw(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func() Config
		yaw      float64
		onScreen bool
	}{
		{"frontal", DefaultConfig, 0, true},
		{"slight turn", DefaultConfig, 3, true},
		{"yunet frontal noise", DefaultConfig, -1.91, true},
		{"turned away", DefaultConfig, 40, false},
		{"turned away left", DefaultConfig, -40, false},
		{"strict allows small turn", StrictConfig, 10, true},
		{"strict rejects moderate turn", StrictConfig, 20, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxFaceYaw = tc.cfg().MaxFaceYaw

			tr := newTestTracker(t, cfg, nil)
			face := testFace()
			face.Pose.Yaw = tc.yaw

			u := tr.ProcessFrame(testFrame(37, 32), face, time.Unix(1000, 0))
			if u.Ratio == nil {
				t.Fatal("pupils should still be found")
			}
			if u.OnScreen != tc.onScreen {
				t.Errorf("yaw %.2f: on screen = %v, want %v", tc.yaw, u.OnScreen, tc.onScreen)
			}
		})
	}
}

func TestTracker_NoFaceGoesAway(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)
	start := time.Unix(1000, 0)

	for i := 0; i < 4; i++ {
		tr.ProcessFrame(testFrame(37, 32), testFace(), start.Add(time.Duration(i)*100*time.Millisecond))
	}

	tests := []struct {
		offset time.Duration
		want   AttentionState
	}{
		{offset: 400 * time.Millisecond, want: AttentionLooking},
		{offset: 800 * time.Millisecond, want: AttentionLooking}, // 400ms away
		{offset: 900 * time.Millisecond, want: AttentionAway},    // 500ms away
	}
	for _, tc := range tests {
		u := tr.ProcessFrame(testFrame(37, 32), nil, start.Add(tc.offset))
		if u.FacePresent || u.Ratio != nil {
			t.Fatalf("no face must yield no ratio: %+v", u)
		}
		if u.Attention != tc.want {
			t.Errorf("at %v: got %s, want %s", tc.offset, u.Attention, tc.want)
		}
	}
}

func TestTracker_ScreenBoxScalesWithFace(t *testing.T) {
	cfg := testConfig()
	cfg.ScaleForFace = true
	tr := newTestTracker(t, cfg, nil)

	face := testFace()
	face.Box.W = 0.5 // twice the reference width

	got := tr.screenBox(face)
	want := gaze.DefaultThresholds().ScaleForFace(0.5)
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if tr.screenBox(nil) != gaze.DefaultThresholds() {
		t.Error("no face should use the unscaled box")
	}
}

// feedTarget pushes enough frames through a zero-delay screen flow to
// finish one target.
func feedTarget(tr *Tracker, now *time.Time) {
	for i := 0; i < 4; i++ {
		*now = now.Add(33 * time.Millisecond)
		tr.ProcessFrame(testFrame(37, 32), testFace(), *now)
	}
}

func TestTracker_ScreenCalibrationPersists(t *testing.T) {
	st := newTestStore(t)
	tr := newTestTracker(t, testConfig(), st)
	tr.now = func() time.Time { return time.Unix(1000, 0) }

	p, err := tr.StartScreenCalibration()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.Kind != calibration.KindScreen || p.ID == "" || !p.Active() {
		t.Fatalf("unexpected progress: %+v", p)
	}

	now := time.Unix(1000, 0)
	feedTarget(tr, &now)
	for i := 0; i < len(calibration.ScreenTargets())-1; i++ {
		if _, err := tr.SkipCalibration(); err != nil {
			t.Fatalf("skip %d: %v", i, err)
		}
	}

	if _, ok := tr.Calibration(); ok {
		t.Error("flow should be finished")
	}
	th, _ := tr.Thresholds()
	h := 24.5 / 51
	if math.Abs(th.HorizontalMin-h) > 1e-9 || math.Abs(th.HorizontalMax-h) > 1e-9 {
		t.Errorf("thresholds not applied: %+v", th)
	}
	if st.Count() != 1 {
		t.Fatalf("expected one stored record, got %d", st.Count())
	}

	status := tr.Status()
	if !status.Calibrated || status.RecordID == "" {
		t.Errorf("status should report the calibration: %+v", status)
	}

	// A new tracker on the same store starts calibrated.
	tr2 := newTestTracker(t, testConfig(), st)
	th2, _ := tr2.Thresholds()
	if th2.HorizontalMin != th.HorizontalMin || th2.VerticalMax != th.VerticalMax {
		t.Errorf("reloaded thresholds differ: %+v vs %+v", th2, th)
	}
	if !tr2.Status().Calibrated {
		t.Error("reloaded tracker should be calibrated")
	}
}

func TestTracker_InvalidNinePointKeepsDefaults(t *testing.T) {
	st := newTestStore(t)
	tr := newTestTracker(t, testConfig(), st)
	tr.now = func() time.Time { return time.Unix(1000, 0) }

	if _, err := tr.StartNinePointCalibration(); err != nil {
		t.Fatalf("start: %v", err)
	}
	now := time.Unix(1000, 0)
	for i := 0; i < 2; i++ {
		now = now.Add(33 * time.Millisecond)
		u := tr.ProcessFrame(testFrame(37, 32), testFace(), now)
		if u.Calibration == nil {
			t.Fatal("update should carry calibration progress")
		}
	}
	for i := 0; i < len(calibration.NinePointSteps)-1; i++ {
		if _, err := tr.SkipCalibration(); err != nil {
			t.Fatalf("skip %d: %v", i, err)
		}
	}

	th, dirs := tr.Thresholds()
	if th != gaze.DefaultThresholds() || dirs != gaze.DefaultDirectionThresholds() {
		t.Error("centre-only calibration must not replace defaults")
	}
	if st.Count() != 0 {
		t.Errorf("invalid calibration must not be stored, got %d records", st.Count())
	}
}

func TestTracker_CalibrationControls(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)

	if _, err := tr.SkipCalibration(); !errors.Is(err, ErrNoCalibration) {
		t.Errorf("skip while idle: got %v", err)
	}
	if err := tr.CancelCalibration(); !errors.Is(err, ErrNoCalibration) {
		t.Errorf("cancel while idle: got %v", err)
	}
	if _, err := tr.StartCalibration("five_point"); err == nil {
		t.Error("expected unknown kind error")
	}

	first, _ := tr.StartScreenCalibration()
	second, _ := tr.StartNinePointCalibration()
	if first.ID == second.ID {
		t.Error("restarting should start a new session")
	}
	if p, ok := tr.Calibration(); !ok || p.Kind != calibration.KindNinePoint {
		t.Errorf("expected nine-point flow active, got %+v", p)
	}
	if err := tr.CancelCalibration(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := tr.Calibration(); ok {
		t.Error("flow should be cleared after cancel")
	}
}

func TestTracker_ResetSession(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)
	tr.thresholds = gaze.Thresholds{HorizontalMin: 0.4, HorizontalMax: 0.6, VerticalMin: 0.4, VerticalMax: 0.6}
	tr.calibrated = true

	tr.ProcessFrame(testFrame(37, 32), testFace(), time.Unix(1000, 0))
	tr.StartScreenCalibration()

	tr.ResetSession(false)
	if _, ok := tr.Last(); ok {
		t.Error("last update should be cleared")
	}
	if _, ok := tr.Calibration(); ok {
		t.Error("active flow should be cancelled")
	}
	if th, _ := tr.Thresholds(); th.HorizontalMin != 0.4 {
		t.Error("thresholds must survive a plain reset")
	}
	if left, _, _ := tr.detector.Calibrator().Progress(); left == 0 {
		t.Error("pupil history should be retained")
	}

	tr.ResetSession(true)
	if th, _ := tr.Thresholds(); th != gaze.DefaultThresholds() {
		t.Errorf("clear should restore defaults, got %+v", th)
	}
	if left, _, _ := tr.detector.Calibrator().Progress(); left != 0 {
		t.Error("clear should drop pupil history")
	}
}

type fakeSource struct{ frame *pupil.Frame }

func (s *fakeSource) Read() (*pupil.Frame, error) { return s.frame, nil }

type fakeProvider struct {
	mu     sync.Mutex
	closed bool
}

func (p *fakeProvider) Detect(*pupil.Frame) ([]landmarks.Face, error) {
	return []landmarks.Face{*testFace()}, nil
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestTracker_StartStop(t *testing.T) {
	provider := &fakeProvider{}
	tr, err := New(testConfig(), &fakeSource{frame: testFrame(37, 32)}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updates := make(chan Update, 1)
	tr.OnUpdate(func(u Update) {
		select {
		case updates <- u:
		default:
		}
	})

	if err := tr.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("stop before start: got %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("double start: got %v", err)
	}

	select {
	case u := <-updates:
		if !u.FacePresent || u.Ratio == nil {
			t.Errorf("unexpected update: %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update from the run loop")
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.Status().Running {
		t.Error("status should report stopped")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !provider.closed {
		t.Error("close should release the provider")
	}
}

func TestTracker_RunNeedsSource(t *testing.T) {
	tr := newTestTracker(t, testConfig(), nil)
	if err := tr.Run(context.Background()); err == nil {
		t.Error("expected an error without a frame source")
	}
}
