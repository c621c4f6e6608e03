// gazewatch - terminal client for gazed
//
// Optionally drives calibration through the dashboard API, then streams
// tracker updates from /ws/gaze and prints every change of attention,
// direction or calibration step.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/httpc"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

func main() {
	addr := flag.String("addr", "localhost:"+config.Port(config.DefaultPort), "gazed dashboard address")
	calibrate := flag.String("calibrate", "", "Start a calibration first: screen, nine_point")
	skip := flag.Bool("skip", false, "Skip the current calibration step and exit")
	cancelCal := flag.Bool("cancel", false, "Cancel the running calibration and exit")
	reset := flag.Bool("reset", false, "Reset the tracking session and exit")
	clearCal := flag.Bool("clear", false, "With -reset, also drop the calibration")
	raw := flag.Bool("raw", false, "Print every update as JSON")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := "http://" + *addr + "/api"
	var err error
	switch {
	case *skip:
		var p calibration.Progress
		if err = httpc.PostJSON(ctx, api+"/calibration/skip", nil, &p); err == nil {
			printProgress(p)
		}
	case *cancelCal:
		if err = httpc.PostJSON(ctx, api+"/calibration/cancel", nil, nil); err == nil {
			fmt.Println("🛑 Calibration cancelled")
		}
	case *reset:
		var st tracking.Status
		if err = httpc.PostJSON(ctx, fmt.Sprintf("%s/session/reset?clear=%t", api, *clearCal), nil, &st); err == nil {
			fmt.Printf("🔄 Session reset (calibrated: %v)\n", st.Calibrated)
		}
	default:
		err = watch(ctx, *addr, api, *calibrate, *raw)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func watch(ctx context.Context, addr, api, calibrate string, raw bool) error {
	if calibrate != "" {
		if _, ok := calibration.ParseKind(calibrate); !ok {
			return fmt.Errorf("unknown calibration kind %q", calibrate)
		}
		var p calibration.Progress
		if err := httpc.PostJSON(ctx, api+"/calibration/"+calibrate+"/start", nil, &p); err != nil {
			return fmt.Errorf("start calibration: %w", err)
		}
		fmt.Printf("🎯 Calibration %s started (%s)\n", p.Kind, p.ID)
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/gaze"}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		ws.Close()
	}()

	fmt.Printf("📡 Watching %s (Ctrl+C to stop)\n", u.String())

	var p printer
	first := true
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}
		if raw {
			fmt.Println(string(data))
			continue
		}

		// The server greets with a status snapshot, then streams updates.
		if first {
			first = false
			var st tracking.Status
			if err := json.Unmarshal(data, &st); err == nil {
				p.status(st)
				continue
			}
		}
		var upd tracking.Update
		if err := json.Unmarshal(data, &upd); err != nil {
			continue
		}
		p.update(upd)
	}
}

// printer prints only what changed since the previous update.
type printer struct {
	attention tracking.AttentionState
	direction string
	calStep   int
	calPhase  calibration.Phase
}

func (p *printer) status(st tracking.Status) {
	fmt.Printf("👁️  attention=%s calibrated=%v box=[%.2f-%.2f]x[%.2f-%.2f] pupil=%d/%d/%d\n",
		st.Attention, st.Calibrated,
		st.Thresholds.HorizontalMin, st.Thresholds.HorizontalMax,
		st.Thresholds.VerticalMin, st.Thresholds.VerticalMax,
		st.Pupil.Left, st.Pupil.Right, st.Pupil.Target)
	p.attention = st.Attention
}

func (p *printer) update(u tracking.Update) {
	if u.Attention != p.attention {
		fmt.Printf("👀 %s\n", u.Attention)
		p.attention = u.Attention
	}

	direction := "-"
	if u.Direction != nil {
		direction = u.Direction.String()
	}
	if direction != p.direction {
		if u.Ratio != nil {
			fmt.Printf("   gaze %-10s (%.2f, %.2f)\n", direction, u.Ratio.Horizontal, u.Ratio.Vertical)
		} else {
			fmt.Printf("   gaze %s\n", direction)
		}
		p.direction = direction
	}

	if c := u.Calibration; c != nil && (c.Step != p.calStep || c.Phase != p.calPhase) {
		printProgress(*c)
		p.calStep, p.calPhase = c.Step, c.Phase
	}
}

func printProgress(p calibration.Progress) {
	if p.Phase == calibration.PhaseComplete {
		fmt.Printf("✅ Calibration %s complete\n", p.Kind)
		return
	}
	fmt.Printf("🎯 [%d/%d] %s: %s", p.Step+1, p.Steps, p.Phase, p.Label)
	if p.Remaining > 0 {
		fmt.Printf(" (%.1fs)", p.Remaining.Seconds())
	}
	if p.Suspended {
		fmt.Print(" ⏸️  look at the target")
	}
	fmt.Println()
}
