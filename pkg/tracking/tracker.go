// Package tracking runs a gaze tracking session: camera frames go through
// landmark detection and the pupil pipeline, and come out as gaze ratios,
// directions and a debounced attention state. It also drives the
// calibration flows and persists what they produce.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/debug"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/landmarks"
	"github.com/teslashibe/go-gaze/pkg/pupil"
	"github.com/teslashibe/go-gaze/pkg/store"
)

var (
	ErrNotRunning     = errors.New("tracker not running")
	ErrAlreadyRunning = errors.New("tracker already running")
	ErrNoCalibration  = errors.New("no calibration in progress")
)

// FrameSource interface for capturing frames
type FrameSource interface {
	Read() (*pupil.Frame, error)
}

// Update is the outcome of one camera frame.
type Update struct {
	At          time.Time             `json:"at"`
	FrameIndex  uint64                `json:"frame_index"`
	Processed   bool                  `json:"processed"`
	FacePresent bool                  `json:"face_present"`
	Face        *landmarks.Face       `json:"face,omitempty"`
	Left        *pupil.EyeResult      `json:"left,omitempty"`
	Right       *pupil.EyeResult      `json:"right,omitempty"`
	Ratio       *gaze.Ratio           `json:"ratio,omitempty"`
	Direction   *gaze.Direction       `json:"direction,omitempty"`
	OnScreen    bool                  `json:"on_screen"`
	Attention   AttentionState        `json:"attention"`
	Changed     bool                  `json:"attention_changed"`
	Calibration *calibration.Progress `json:"calibration,omitempty"`
}

// PupilStatus reports the adaptive threshold calibrator.
type PupilStatus struct {
	Left           int  `json:"left"`
	Right          int  `json:"right"`
	Target         int  `json:"target"`
	Converged      bool `json:"converged"`
	FixedThreshold int  `json:"fixed_threshold,omitempty"`
}

// Status is a snapshot for the dashboard.
type Status struct {
	Running        bool                     `json:"running"`
	Misses         int                      `json:"misses"`
	Attention      AttentionState           `json:"attention"`
	AttentionSince time.Time                `json:"attention_since"`
	Thresholds     gaze.Thresholds          `json:"thresholds"`
	Directions     gaze.DirectionThresholds `json:"directions"`
	Calibrated     bool                     `json:"calibrated"`
	RecordID       string                   `json:"record_id,omitempty"`
	Pupil          PupilStatus              `json:"pupil"`
	Calibration    *calibration.Progress    `json:"calibration,omitempty"`
	Last           *Update                  `json:"last,omitempty"`
}

// Tracker handles one gaze tracking session
type Tracker struct {
	config   Config
	source   FrameSource
	provider landmarks.Provider
	store    store.Store
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	detector   *pupil.Detector
	attention  *Attention
	thresholds gaze.Thresholds
	directions gaze.DirectionThresholds
	calibrated bool
	recordID   string
	nine       *calibration.NinePoint
	screen     *calibration.ScreenFlow
	flow       calibration.Flow // active flow, nil when idle
	last       *Update
	misses     int
	listeners  []func(Update)
	frameHooks []func(*pupil.Frame, Update)

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a tracker. source and provider may be nil when frames are
// pushed through ProcessFrame; st may be nil to skip persistence.
func New(config Config, source FrameSource, provider landmarks.Provider, st store.Store) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracking config: %w", err)
	}

	t := &Tracker{
		config:     config,
		source:     source,
		provider:   provider,
		store:      st,
		log:        log.With("component", "tracker"),
		now:        time.Now,
		detector:   pupil.NewDetector(config.Pupil),
		attention:  NewAttention(config.LookingAfter, config.AwayAfter),
		thresholds: gaze.DefaultThresholds(),
		directions: gaze.DefaultDirectionThresholds(),
		nine:       calibration.NewNinePoint(config.NinePoint),
		screen:     calibration.NewScreenFlow(config.Screen),
	}
	t.loadCalibration()
	return t, nil
}

// loadCalibration seeds thresholds from the newest stored records. Screen
// records own the screen box; 9-point records own the direction cut-offs
// and fill the box only when no screen record exists.
func (t *Tracker) loadCalibration() {
	if t.store == nil {
		return
	}

	screen, err := t.store.Latest(calibration.KindScreen)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		t.log.Warn("failed to load screen calibration", "error", err)
	}
	nine, err := t.store.Latest(calibration.KindNinePoint)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		t.log.Warn("failed to load nine-point calibration", "error", err)
	}

	// Oldest first so the newest record wins shared fields.
	recs := []*store.Record{nine, screen}
	if nine != nil && screen != nil && nine.CreatedAt.After(screen.CreatedAt) {
		recs = []*store.Record{screen, nine}
	}
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if rec.Kind == calibration.KindNinePoint && screen != nil {
			// Keep the screen box, take only the directions.
			if rec.Directions != nil && rec.Directions.Valid() {
				t.directions = *rec.Directions
			}
			t.restorePupil(rec)
			continue
		}
		t.applyRecord(rec)
	}
	if t.calibrated {
		t.log.Info("calibration loaded", "record", t.recordID, "thresholds", t.thresholds)
	}
}

// applyRecord makes rec the active calibration. Caller holds mu or owns t.
func (t *Tracker) applyRecord(rec *store.Record) {
	if !rec.Thresholds.Valid() {
		t.log.Warn("ignoring invalid calibration", "record", rec.ID, "kind", rec.Kind)
		return
	}
	t.thresholds = rec.Thresholds
	if rec.Directions != nil && rec.Directions.Valid() {
		t.directions = *rec.Directions
	}
	t.calibrated = true
	t.recordID = rec.ID
	t.restorePupil(rec)
}

func (t *Tracker) restorePupil(rec *store.Record) {
	if rec.Pupil == nil || t.config.Pupil.FixedThreshold > 0 {
		return
	}
	t.detector.Calibrator().Restore(*rec.Pupil)
}

// ProcessFrame runs one frame through the pipeline. face is the selected
// face for the frame, or nil when none was found.
func (t *Tracker) ProcessFrame(frame *pupil.Frame, face *landmarks.Face, now time.Time) Update {
	t.mu.Lock()
	u := t.processLocked(frame, face, now)
	t.last = &u
	listeners, hooks := t.listeners, t.frameHooks
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
	for _, fn := range hooks {
		fn(frame, u)
	}
	return u
}

func (t *Tracker) processLocked(frame *pupil.Frame, face *landmarks.Face, now time.Time) Update {
	u := Update{At: now, FacePresent: face != nil}

	var res pupil.FrameResult
	if face != nil {
		res = t.detector.DetectFrame(frame, face.Input())
		f := *face
		u.Face = &f
	} else {
		res = pupil.FrameResult{FrameIndex: t.detector.NextFrame()}
	}
	u.FrameIndex = res.FrameIndex
	u.Processed = res.Processed
	u.Left, u.Right = res.Left, res.Right

	left, right := gaze.ResultRatio(res.Left), gaze.ResultRatio(res.Right)
	ratio, ok := gaze.Average(left, right)
	if ok {
		d := gaze.ClassifyWith(ratio.Horizontal, ratio.Vertical, t.directions)
		u.Ratio = &ratio
		u.Direction = &d
		u.OnScreen = t.facingScreen(face) && t.screenBox(face).Contains(ratio, t.config.ScreenMargin)
	}

	u.Attention, u.Changed = t.attention.Update(u.OnScreen, u.FacePresent, now)
	if u.Changed {
		t.log.Info("attention changed", "state", u.Attention, "frame", u.FrameIndex)
	}

	if t.flow != nil {
		t.feedCalibration(face, left, right, ratio, ok, now)
		p := t.flow.Progress(now)
		u.Calibration = &p
		if t.flow.Done() {
			t.finishCalibration(now)
		}
	}

	if u.Ratio != nil {
		debug.Log("👀 frame %d ratio (%.2f, %.2f) %s on_screen=%v\n",
			u.FrameIndex, ratio.Horizontal, ratio.Vertical, *u.Direction, u.OnScreen)
	}
	return u
}

// screenBox returns the thresholds adjusted for the current face distance.
func (t *Tracker) screenBox(face *landmarks.Face) gaze.Thresholds {
	if !t.config.ScaleForFace || face == nil {
		return t.thresholds
	}
	return t.thresholds.ScaleForFace(face.Width())
}

func (t *Tracker) facingScreen(face *landmarks.Face) bool {
	if face == nil {
		return false
	}
	if t.config.MaxFaceYaw <= 0 {
		return true
	}
	return math.Abs(face.Pose.Yaw) <= t.config.MaxFaceYaw
}

func (t *Tracker) feedCalibration(face *landmarks.Face, left, right *gaze.Ratio, ratio gaze.Ratio, ok bool, now time.Time) {
	var faceWidth float64
	if face != nil {
		faceWidth = face.Width()
	}

	switch t.flow.Kind() {
	case calibration.KindScreen:
		t.screen.Observe(calibration.Reading{
			FacePresent: face != nil && ok,
			Ratio:       ratio,
			FaceWidth:   faceWidth,
		}, now)

	case calibration.KindNinePoint:
		t.nine.Tick(now)
		if !ok {
			return
		}
		// A missing eye borrows the other one's reading.
		if left == nil {
			left = &ratio
		}
		if right == nil {
			right = &ratio
		}
		t.nine.AddSample(calibration.Sample{
			LeftRatio:      left.Horizontal,
			RightRatio:     right.Horizontal,
			LeftVertical:   left.Vertical,
			RightVertical:  right.Vertical,
			FaceWidthRatio: faceWidth,
		}, now)
	}
}

// finishCalibration applies and persists a completed flow. Invalid results
// leave the previous thresholds in place.
func (t *Tracker) finishCalibration(now time.Time) {
	kind := t.flow.Kind()
	t.flow = nil

	rec := &store.Record{Kind: kind}
	switch kind {
	case calibration.KindNinePoint:
		res, err := t.nine.Result()
		if err != nil {
			t.log.Warn("calibration discarded", "kind", kind, "error", err)
			return
		}
		rec.Thresholds = res.Thresholds()
		rec.Thresholds.CreatedAt = now
		if d := res.DirectionThresholds(); d.Valid() {
			rec.Directions = &d
		}
	case calibration.KindScreen:
		th, err := t.screen.Result()
		if err != nil {
			t.log.Warn("calibration discarded", "kind", kind, "error", err)
			return
		}
		rec.Thresholds = th
	}
	if !rec.Thresholds.Valid() {
		t.log.Warn("calibration discarded", "kind", kind, "thresholds", rec.Thresholds)
		return
	}

	if cal := t.detector.Calibrator(); cal.IsComplete() {
		snap := cal.Snapshot()
		rec.Pupil = &snap
	}
	if t.store != nil {
		if err := t.store.Save(rec); err != nil {
			t.log.Warn("failed to save calibration", "kind", kind, "error", err)
		}
	}
	t.applyRecord(rec)
	t.log.Info("calibration applied", "kind", kind, "record", rec.ID, "thresholds", rec.Thresholds)
}

// StartCalibration starts (or restarts) a calibration flow.
func (t *Tracker) StartCalibration(kind calibration.Kind) (calibration.Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var flow calibration.Flow
	switch kind {
	case calibration.KindNinePoint:
		flow = t.nine
	case calibration.KindScreen:
		flow = t.screen
	default:
		return calibration.Progress{}, fmt.Errorf("unknown calibration kind %q", kind)
	}

	if t.flow != nil {
		t.flow.Cancel()
	}
	now := t.now()
	flow.Start(now)
	t.flow = flow
	p := flow.Progress(now)
	t.log.Info("calibration started", "kind", kind, "id", p.ID)
	return p, nil
}

// StartScreenCalibration starts the screen-target flow.
func (t *Tracker) StartScreenCalibration() (calibration.Progress, error) {
	return t.StartCalibration(calibration.KindScreen)
}

// StartNinePointCalibration starts the directional flow.
func (t *Tracker) StartNinePointCalibration() (calibration.Progress, error) {
	return t.StartCalibration(calibration.KindNinePoint)
}

// SkipCalibration moves the active flow to its next step.
func (t *Tracker) SkipCalibration() (calibration.Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flow == nil {
		return calibration.Progress{}, ErrNoCalibration
	}
	now := t.now()
	flow := t.flow
	flow.Skip(now)
	p := flow.Progress(now)
	if flow.Done() {
		t.finishCalibration(now)
	}
	return p, nil
}

// CancelCalibration abandons the active flow. Thresholds are unchanged.
func (t *Tracker) CancelCalibration() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flow == nil {
		return ErrNoCalibration
	}
	t.log.Info("calibration cancelled", "kind", t.flow.Kind())
	t.flow.Cancel()
	t.flow = nil
	return nil
}

// Calibration returns the active flow's progress.
func (t *Tracker) Calibration() (calibration.Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flow == nil {
		return calibration.Progress{}, false
	}
	return t.flow.Progress(t.now()), true
}

// Thresholds returns the active screen box and direction cut-offs.
func (t *Tracker) Thresholds() (gaze.Thresholds, gaze.DirectionThresholds) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thresholds, t.directions
}

// Last returns the most recent update.
func (t *Tracker) Last() (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		return Update{}, false
	}
	return *t.last, true
}

// Status returns a dashboard snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	cal := t.detector.Calibrator()
	left, right, target := cal.Progress()
	s := Status{
		Running:        t.running,
		Misses:         t.misses,
		Attention:      t.attention.State(),
		AttentionSince: t.attention.Since(),
		Thresholds:     t.thresholds,
		Directions:     t.directions,
		Calibrated:     t.calibrated,
		RecordID:       t.recordID,
		Pupil: PupilStatus{
			Left:           left,
			Right:          right,
			Target:         target,
			Converged:      cal.IsComplete(),
			FixedThreshold: t.config.Pupil.FixedThreshold,
		},
	}
	if t.flow != nil {
		p := t.flow.Progress(t.now())
		s.Calibration = &p
	}
	if t.last != nil {
		u := *t.last
		s.Last = &u
	}
	return s
}

// OnUpdate registers a callback run after every frame. Callbacks run on
// the capture goroutine and must not block.
func (t *Tracker) OnUpdate(fn func(Update)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// OnFrame registers a callback that also receives the camera frame. The
// frame is only valid for the duration of the call.
func (t *Tracker) OnFrame(fn func(*pupil.Frame, Update)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameHooks = append(t.frameHooks, fn)
}

// ResetSession clears per-session state. Learned pupil thresholds survive
// per Config.Pupil.RetainCalibration unless clearCalibration is set, which
// also drops the screen box and direction cut-offs back to defaults.
func (t *Tracker) ResetSession(clearCalibration bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(clearCalibration)
}

func (t *Tracker) resetLocked(clearCalibration bool) {
	t.detector.Reset(t.config.Pupil.RetainCalibration && !clearCalibration)
	t.attention.Reset()
	if t.flow != nil {
		t.flow.Cancel()
		t.flow = nil
	}
	t.last = nil
	t.misses = 0

	if clearCalibration {
		t.thresholds = gaze.DefaultThresholds()
		t.directions = gaze.DefaultDirectionThresholds()
		t.calibrated = false
		t.recordID = ""
	}
}

// Run reads, detects and processes frames until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	if t.source == nil || t.provider == nil {
		return fmt.Errorf("tracker needs a frame source and a landmark provider")
	}

	ticker := time.NewTicker(t.config.FrameInterval)
	defer ticker.Stop()

	t.mu.Lock()
	t.running = true
	calibrated := t.calibrated
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	fmt.Printf("👁️  Gaze tracker started\n")
	fmt.Printf("    Interval: %v, Frame skip: %d, Calibrated: %v\n",
		t.config.FrameInterval, t.config.Pupil.FrameSkipCount, calibrated)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.step()
		}
	}
}

func (t *Tracker) step() {
	frame, err := t.source.Read()
	if err != nil {
		t.miss("read", err)
		return
	}
	faces, err := t.provider.Detect(frame)
	if err != nil {
		t.miss("detect", err)
		return
	}

	t.mu.Lock()
	t.misses = 0
	t.mu.Unlock()

	t.ProcessFrame(frame, landmarks.SelectBest(faces), t.now())
}

func (t *Tracker) miss(stage string, err error) {
	t.mu.Lock()
	t.misses++
	misses := t.misses
	t.mu.Unlock()

	if misses == t.config.MaxMisses {
		t.log.Warn("frames failing", "stage", stage, "misses", misses, "error", err)
	} else {
		debug.Log("👁️  %s error: %v\n", stage, err)
	}
}

// Start runs the tracker in the background.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		if err := t.Run(ctx); err != nil {
			t.log.Error("tracker stopped", "error", err)
		}
	}()
	return nil
}

// Stop halts a tracker started with Start and resets the session.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	<-done

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel, t.done = nil, nil
	t.resetLocked(false)
	return nil
}

// Close stops the tracker and releases the detector and provider.
func (t *Tracker) Close() error {
	if err := t.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.detector.Close()
	if t.provider != nil {
		return t.provider.Close()
	}
	return nil
}
