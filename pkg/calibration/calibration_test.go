package calibration

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

const frameInterval = 100 * time.Millisecond

// ninePointValue is the synthetic ratio injected for sample j of step i.
func ninePointValue(i, j int) float64 {
	return 0.1 + 0.08*float64(i) + 0.001*float64(j)
}

func runNinePoint(t *testing.T, n *NinePoint, skip map[Step]bool) time.Time {
	t.Helper()
	now := t0
	n.Start(now)
	for i, step := range NinePointSteps {
		if skip[step] {
			n.Skip(now)
			continue
		}
		now = now.Add(n.config.Countdown)
		for j := 0; j < n.config.SamplesPerStep; j++ {
			v := ninePointValue(i, j)
			s := Sample{LeftRatio: v, RightRatio: v, LeftVertical: v, RightVertical: v, FaceWidthRatio: 0.25}
			if !n.AddSample(s, now) {
				t.Fatalf("step %s sample %d rejected", step, j)
			}
			now = now.Add(frameInterval)
		}
	}
	return now
}

func TestNinePoint_ThresholdsMatchInjectedExtremes(t *testing.T) {
	n := NewNinePoint(DefaultNinePointConfig())
	runNinePoint(t, n, nil)

	if !n.Done() || !n.IsComplete() {
		t.Fatal("expected a complete flow")
	}
	res, err := n.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}

	expect := func(steps ...Step) Range {
		var r Range
		for _, s := range steps {
			for j := 0; j < 30; j++ {
				r.add(ninePointValue(int(s), j))
			}
		}
		return r
	}

	tests := []struct {
		name   string
		got    Range
		expect Range
	}{
		{name: "left", got: res.Left, expect: expect(StepLeft, StepFarLeft)},
		{name: "right", got: res.Right, expect: expect(StepRight, StepFarRight)},
		{name: "up", got: res.Up, expect: expect(StepUp, StepTopLeft, StepTopRight)},
		{name: "down", got: res.Down, expect: expect(StepDown)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got.Min != tc.expect.Min || tc.got.Max != tc.expect.Max {
				t.Errorf("got [%v, %v], want [%v, %v]", tc.got.Min, tc.got.Max, tc.expect.Min, tc.expect.Max)
			}
		})
	}

	th := res.Thresholds()
	if th.HorizontalMin != res.Right.Min || th.HorizontalMax != res.Left.Max {
		t.Errorf("horizontal thresholds: %+v", th)
	}
	if th.VerticalMin != res.Up.Min || th.VerticalMax != res.Down.Max {
		t.Errorf("vertical thresholds: %+v", th)
	}
	if math.Abs(res.FaceWidth-0.25) > 1e-9 {
		t.Errorf("face width: got %v", res.FaceWidth)
	}
	if res.Samples != 9*30 {
		t.Errorf("samples: got %d", res.Samples)
	}
}

func TestNinePoint_MissingGroupIsInvalid(t *testing.T) {
	tests := []struct {
		name string
		skip map[Step]bool
		msg  string
	}{
		{name: "no centre", skip: map[Step]bool{StepCenter: true}, msg: "no centre samples"},
		{name: "no down", skip: map[Step]bool{StepDown: true}, msg: "no down samples"},
		{name: "no left group", skip: map[Step]bool{StepLeft: true, StepFarLeft: true}, msg: "no left samples"},
		{
			// Several empty groups always report the first in left, right, up, down order.
			name: "no right and down",
			skip: map[Step]bool{StepRight: true, StepFarRight: true, StepDown: true},
			msg:  "no right samples",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNinePoint(DefaultNinePointConfig())
			runNinePoint(t, n, tc.skip)

			if !n.Done() {
				t.Fatal("flow should finish when steps are skipped")
			}
			if n.IsComplete() {
				t.Error("expected incomplete calibration")
			}
			for i := 0; i < 5; i++ {
				_, err := n.Result()
				if !errors.Is(err, ErrCalibrationInvalid) {
					t.Fatalf("got %v, want ErrCalibrationInvalid", err)
				}
				if !strings.Contains(err.Error(), tc.msg) {
					t.Fatalf("error %q should mention %q", err, tc.msg)
				}
			}
		})
	}

	// One half of a group is enough
	n := NewNinePoint(DefaultNinePointConfig())
	runNinePoint(t, n, map[Step]bool{StepFarLeft: true, StepTopLeft: true})
	if !n.IsComplete() {
		t.Error("partial groups should still complete")
	}
}

func TestNinePoint_CountdownGatesSamples(t *testing.T) {
	n := NewNinePoint(DefaultNinePointConfig())
	n.Start(t0)

	if n.AddSample(Sample{}, t0.Add(time.Second)) {
		t.Error("sample accepted during countdown")
	}
	p := n.Progress(t0.Add(time.Second))
	if p.Phase != PhaseCountdown || p.Remaining != time.Second {
		t.Errorf("progress: %+v", p)
	}
	if !n.AddSample(Sample{}, t0.Add(2*time.Second)) {
		t.Error("sample rejected after countdown")
	}
	if step, _ := n.CurrentStep(); step != StepCenter {
		t.Errorf("step: got %s", step)
	}
}

func TestNinePoint_Cancel(t *testing.T) {
	n := NewNinePoint(DefaultNinePointConfig())
	n.Start(t0)
	n.AddSample(Sample{LeftRatio: 0.5}, t0.Add(3*time.Second))
	n.Cancel()

	p := n.Progress(t0)
	if p.Phase != PhaseIdle || p.Active() {
		t.Errorf("expected idle after cancel, got %+v", p)
	}
	if _, err := n.Result(); !errors.Is(err, ErrNotFinished) {
		t.Errorf("got %v, want ErrNotFinished", err)
	}
	if n.AddSample(Sample{}, t0.Add(time.Hour)) {
		t.Error("idle flow accepted a sample")
	}
}

// targetRatio maps a screen target to a plausible gaze ratio. Looking at
// the left of the screen moves the pupil towards the high end.
func targetRatio(tg Target) gaze.Ratio {
	return gaze.Ratio{Horizontal: 0.7 - 0.4*tg.X, Vertical: 0.3 + 0.4*tg.Y}
}

func TestScreenFlow_CompletesWithGlobalExtremes(t *testing.T) {
	f := NewScreenFlow(DefaultScreenConfig())
	f.Start(t0)

	now := t0
	for i := 0; i < 5000 && !f.Done(); i++ {
		now = now.Add(frameInterval)
		tg := f.targets[f.target]
		f.Observe(Reading{FacePresent: true, Ratio: targetRatio(tg), FaceWidth: 0.3}, now)
	}
	if !f.Done() {
		t.Fatal("flow did not finish")
	}

	th, err := f.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}

	var h, v Range
	for _, tg := range ScreenTargets() {
		r := targetRatio(tg)
		h.add(r.Horizontal)
		v.add(r.Vertical)
	}
	if th.HorizontalMin != h.Min || th.HorizontalMax != h.Max {
		t.Errorf("horizontal: got [%v, %v], want [%v, %v]", th.HorizontalMin, th.HorizontalMax, h.Min, h.Max)
	}
	if th.VerticalMin != v.Min || th.VerticalMax != v.Max {
		t.Errorf("vertical: got [%v, %v], want [%v, %v]", th.VerticalMin, th.VerticalMax, v.Min, v.Max)
	}
	if math.Abs(th.ReferenceFaceWidth-0.3) > 1e-9 {
		t.Errorf("face width: got %v", th.ReferenceFaceWidth)
	}
	if got := len(f.Samples()); got != 9*15 {
		t.Errorf("samples: got %d", got)
	}
	if th.CreatedAt.IsZero() {
		t.Error("expected completion time")
	}
}

func TestScreenFlow_FailuresSuspendTimers(t *testing.T) {
	f := NewScreenFlow(DefaultScreenConfig())
	f.Start(t0)

	good := Reading{FacePresent: true, Ratio: gaze.Ratio{Horizontal: 0.5, Vertical: 0.5}, FaceWidth: 0.3}
	lost := Reading{}

	now := t0
	feed := func(r Reading, frames int) {
		for i := 0; i < frames; i++ {
			now = now.Add(frameInterval)
			f.Observe(r, now)
		}
	}

	feed(good, 10) // 1s pause
	if p := f.Progress(now); p.Phase != PhaseCountdown {
		t.Fatalf("expected countdown, got %s", p.Phase)
	}

	feed(lost, 6)
	if !f.Suspended() {
		t.Fatal("expected suspension after more than 5 failures")
	}
	frozen := f.Progress(now).Remaining

	feed(lost, 20)
	if got := f.Progress(now).Remaining; got != frozen {
		t.Errorf("countdown moved while suspended: %v -> %v", frozen, got)
	}

	feed(good, 1)
	if f.Suspended() {
		t.Error("expected automatic recovery")
	}
	if got := f.Progress(now).Remaining; got >= frozen {
		t.Errorf("countdown did not resume: %v", got)
	}

	feed(good, 24) // the remaining 2.4s of countdown
	if p := f.Progress(now); p.Phase != PhaseCollecting || p.Collected != 0 {
		t.Fatalf("expected collecting, got %s", p.Phase)
	}

	feed(good, 5)
	feed(lost, 10)
	p := f.Progress(now)
	if !p.Suspended || p.Collected != 5 {
		t.Errorf("suspension must keep samples: %+v", p)
	}

	feed(good, 10)
	p = f.Progress(now)
	if p.Step != 1 || p.Phase != PhasePause {
		t.Errorf("expected next target after 15 samples, got %+v", p)
	}
}

func TestScreenFlow_FixationGate(t *testing.T) {
	f := NewScreenFlow(DefaultScreenConfig())
	f.Start(t0)
	f.Skip(t0) // past the centre target

	steady := Reading{FacePresent: true, Ratio: gaze.Ratio{Horizontal: 0.6, Vertical: 0.4}}
	drift := steady
	drift.Ratio.Horizontal += 0.2

	now := t0
	for i := 0; i < 10; i++ {
		now = now.Add(frameInterval)
		f.Observe(drift, now) // pause only checks the face
	}
	if p := f.Progress(now); p.Phase != PhaseCountdown || p.Failures != 0 {
		t.Fatalf("expected clean countdown, got %+v", p)
	}

	now = now.Add(frameInterval)
	f.Observe(steady, now)
	now = now.Add(frameInterval)
	f.Observe(drift, now)
	if got := f.Progress(now).Failures; got != 1 {
		t.Errorf("drift should fail fixation, failures=%d", got)
	}

	now = now.Add(frameInterval)
	f.Observe(steady, now)
	if got := f.Progress(now).Failures; got != 0 {
		t.Errorf("steady reading should reset failures, got %d", got)
	}
}

func TestScreenFlow_CancelAndInvalid(t *testing.T) {
	f := NewScreenFlow(DefaultScreenConfig())
	f.Start(t0)

	now := t0
	for i := 0; i < 60; i++ {
		now = now.Add(frameInterval)
		f.Observe(Reading{FacePresent: true, Ratio: gaze.Ratio{Horizontal: 0.5, Vertical: 0.5}}, now)
	}
	if len(f.Samples()) == 0 {
		t.Fatal("expected samples before cancel")
	}

	f.Cancel()
	if len(f.Samples()) != 0 || f.Progress(now).Phase != PhaseIdle {
		t.Error("cancel must discard samples and return to idle")
	}
	if _, err := f.Result(); !errors.Is(err, ErrNotFinished) {
		t.Errorf("got %v, want ErrNotFinished", err)
	}

	f.Start(now)
	for range ScreenTargets() {
		f.Skip(now)
	}
	if !f.Done() {
		t.Fatal("skipping every target should finish the flow")
	}
	if _, err := f.Result(); !errors.Is(err, ErrCalibrationInvalid) {
		t.Errorf("got %v, want ErrCalibrationInvalid", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"nine_point", "screen"} {
		if k, ok := ParseKind(s); !ok || string(k) != s {
			t.Errorf("ParseKind(%q) = %q, %v", s, k, ok)
		}
	}
	if _, ok := ParseKind("five_point"); ok {
		t.Error("expected unknown kind to fail")
	}
}
