// Package web serves the gaze dashboard: a JSON API for status and
// calibration control, and websocket streams of tracker updates and eye
// snapshots.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/pupil"
	"github.com/teslashibe/go-gaze/pkg/store"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// Tracker is the tracker surface the dashboard drives.
type Tracker interface {
	Status() tracking.Status
	Thresholds() (gaze.Thresholds, gaze.DirectionThresholds)
	StartCalibration(kind calibration.Kind) (calibration.Progress, error)
	SkipCalibration() (calibration.Progress, error)
	CancelCalibration() error
	ResetSession(clearCalibration bool)
}

var _ Tracker = (*tracking.Tracker)(nil)

// Options configures optional parts of the server.
type Options struct {
	Camera        *camera.Manager // enables /api/camera
	Store         store.Store     // enables /api/calibrations
	StaticDir     string          // served at / when set
	SnapshotEvery int             // eye snapshot every Nth frame (0 = 10)
	SnapshotSize  int             // snapshot height in pixels (0 = 96)
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	addr    string
	tracker Tracker
	opts    Options
	log     *slog.Logger

	// Hubs for websocket broadcast
	gazeHub *hub.Hub
	eyesHub *hub.Hub

	frames atomic.Uint64
}

// NewServer creates a dashboard bound to addr.
func NewServer(addr string, tracker Tracker, opts Options) *Server {
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = 10
	}
	if opts.SnapshotSize <= 0 {
		opts.SnapshotSize = 96
	}

	s := &Server{
		addr:    addr,
		tracker: tracker,
		opts:    opts,
		log:     log.With("component", "web"),
		gazeHub: hub.New("gaze"),
		eyesHub: hub.New("eyes"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Gaze Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// CORS for local development
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/thresholds", s.handleThresholds)
	api.Post("/calibration/skip", s.handleSkipCalibration)
	api.Post("/calibration/cancel", s.handleCancelCalibration)
	api.Post("/calibration/:kind/start", s.handleStartCalibration)
	api.Post("/session/reset", s.handleResetSession)
	api.Get("/calibrations", s.handleListCalibrations)
	api.Delete("/calibrations/:id", s.handleDeleteCalibration)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))
	app.Get("/ws/eyes", websocket.New(s.handleEyesWS))

	s.app = app
	return s
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.gazeHub.Run(ctx)
	go s.eyesHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.log.Warn("shutdown failed", "error", err)
		}
	}()

	fmt.Printf("🌐 Gaze dashboard: http://localhost%s\n", s.addr)
	if err := s.app.Listen(s.addr); err != nil {
		return fmt.Errorf("dashboard listen on %s: %w", s.addr, err)
	}
	return nil
}

// PublishUpdate streams a tracker update to /ws/gaze clients. Register it
// with Tracker.OnUpdate.
func (s *Server) PublishUpdate(u tracking.Update) {
	if s.gazeHub.ClientCount() == 0 {
		return
	}
	if err := s.gazeHub.BroadcastJSON(u); err != nil {
		s.log.Warn("failed to encode update", "error", err)
	}
}

// PublishFrame streams an eye snapshot to /ws/eyes clients every
// SnapshotEvery frames. Register it with Tracker.OnFrame.
func (s *Server) PublishFrame(frame *pupil.Frame, u tracking.Update) {
	n := s.frames.Add(1)
	if (n-1)%uint64(s.opts.SnapshotEvery) != 0 || s.eyesHub.ClientCount() == 0 {
		return
	}
	data, err := EyeSnapshot(frame, u.Left, u.Right, s.opts.SnapshotSize)
	if err != nil {
		return // no eyes this frame
	}
	s.eyesHub.BroadcastBinary(data)
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
