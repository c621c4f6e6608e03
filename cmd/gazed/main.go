// gazed - webcam gaze tracking daemon
//
// Reads the camera, tracks pupils and gaze direction, reports whether the
// user is looking at the screen and serves a dashboard with calibration
// controls.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/debug"
	"github.com/teslashibe/go-gaze/pkg/landmarks"
	"github.com/teslashibe/go-gaze/pkg/store"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/web"
)

// options is everything main needs after flag parsing.
type options struct {
	Tracking  tracking.Config
	Camera    camera.Config
	Landmarks landmarks.Config
	Backend   string
	StorePath string
	Port      string
	StaticDir string
	NoWeb     bool
	Calibrate string
	LogLevel  string
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}
	log.Init(opts.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Error("gazed failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("\n👋 Goodbye!")
}

func run(ctx context.Context, opts options) error {
	fmt.Println("👁️  Gaze tracker")
	fmt.Println("================")

	var st *store.JSONStore
	var err error
	if opts.StorePath != "" {
		st, err = store.NewJSONStore(opts.StorePath)
	} else {
		st, err = store.NewDefaultStore()
	}
	if err != nil {
		return fmt.Errorf("open calibration store: %w", err)
	}
	fmt.Printf("Store: %s (%d calibrations)\n", st.Path(), st.Count())

	cam, err := camera.Open(opts.Camera)
	if err != nil {
		return err
	}
	defer cam.Close()
	w, h := cam.Size()
	fmt.Printf("Camera: %s %dx%d@%d\n", opts.Camera.Device, w, h, opts.Camera.Framerate)

	provider, err := landmarks.New(opts.Backend, opts.Landmarks)
	if err != nil {
		return err
	}
	fmt.Printf("Landmarks: %s\n", opts.Backend)

	tracker, err := tracking.New(opts.Tracking, cam, provider, st)
	if err != nil {
		provider.Close()
		return err
	}
	defer tracker.Close()

	if !opts.NoWeb {
		manager := camera.NewManager(opts.Camera)
		manager.OnConfigChange = cam.Apply

		srv := web.NewServer(config.ListenAddr(opts.Port), tracker, web.Options{
			Camera:    manager,
			Store:     st,
			StaticDir: opts.StaticDir,
		})
		tracker.OnUpdate(srv.PublishUpdate)
		tracker.OnFrame(srv.PublishFrame)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error("dashboard stopped", "error", err)
			}
		}()
	}

	tracker.OnUpdate(func(u tracking.Update) {
		if u.Changed {
			fmt.Printf("👀 %s\n", u.Attention)
		}
	})

	if opts.Calibrate != "" {
		kind, ok := calibration.ParseKind(opts.Calibrate)
		if !ok {
			return fmt.Errorf("unknown calibration kind %q", opts.Calibrate)
		}
		if _, err := tracker.StartCalibration(kind); err != nil {
			return err
		}
	}

	if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// parseFlags parses command line flags on top of GAZE_* environment
// defaults.
func parseFlags() (options, error) {
	opts := options{
		Tracking:  tracking.DefaultConfig(),
		Camera:    camera.DefaultConfig(),
		Landmarks: landmarks.DefaultConfig(),
	}

	frameSkip, err := config.FrameSkip(opts.Tracking.Pupil.FrameSkipCount)
	if err != nil {
		return opts, err
	}

	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	pupilDebug := flag.Bool("debug-pupil", false, "Trace the pupil pipeline on every frame")
	profile := flag.String("profile", "default", "Tracking profile: default, low-power, strict")
	device := flag.String("camera", config.CameraDevice(opts.Camera.Device), "Camera index or stream URL")
	preset := flag.String("preset", "", "Camera preset: "+fmt.Sprint(camera.PresetNames()))
	mirror := flag.Bool("mirror", false, "Mirror the camera image")
	backend := flag.String("landmarks", config.Landmarks(config.DefaultLandmarks), "Landmark backend: yunet, pigo")
	model := flag.String("model", config.ModelPath(opts.Landmarks.ModelPath), "YuNet ONNX model")
	faceFinder := flag.String("facefinder", opts.Landmarks.FaceFinderPath, "pigo facefinder cascade")
	puploc := flag.String("puploc", opts.Landmarks.PuplocPath, "pigo puploc cascade")
	skip := flag.Int("frame-skip", frameSkip, "Run the pupil pipeline on every Nth frame")
	fixed := flag.Int("threshold", 0, "Fixed binarisation threshold (0 = adaptive)")
	storePath := flag.String("store", config.StorePath(""), "Calibration store (default ~/.gaze/calibrations.json)")
	port := flag.String("port", config.Port(config.DefaultPort), "Dashboard port")
	static := flag.String("static", "", "Directory served at / by the dashboard")
	noWeb := flag.Bool("no-web", false, "Disable the dashboard")
	calibrate := flag.String("calibrate", "", "Start a calibration on launch: screen, nine_point")
	logLevel := flag.String("log-level", config.LogLevel(config.DefaultLogLevel), "Log level: debug, info, warn, error")
	flag.Parse()

	debug.Enabled, debug.Pupil = *debugFlag, *pupilDebug

	switch *profile {
	case "default":
	case "low-power":
		opts.Tracking = tracking.LowPowerConfig()
	case "strict":
		opts.Tracking = tracking.StrictConfig()
	default:
		return opts, fmt.Errorf("unknown profile %q", *profile)
	}
	// Only an explicit flag or env var overrides the profile's skip count.
	if *skip != frameSkip || os.Getenv(config.EnvFrameSkip) != "" {
		opts.Tracking.Pupil.FrameSkipCount = *skip
	}
	opts.Tracking.Pupil.FixedThreshold = *fixed

	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			return opts, fmt.Errorf("unknown camera preset %q", *preset)
		}
		opts.Camera = *p
	}
	opts.Camera.Device = *device
	opts.Camera.Mirror = *mirror

	opts.Landmarks.ModelPath = *model
	opts.Landmarks.FaceFinderPath = *faceFinder
	opts.Landmarks.PuplocPath = *puploc

	opts.Backend = *backend
	opts.StorePath = *storePath
	opts.Port = *port
	opts.StaticDir = *static
	opts.NoWeb = *noWeb
	opts.Calibrate = *calibrate
	opts.LogLevel = *logLevel
	if *debugFlag {
		opts.LogLevel = "debug"
	}

	if err := opts.Tracking.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
