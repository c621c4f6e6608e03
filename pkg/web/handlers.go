package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/store"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// handleStatus returns the tracker snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Status())
}

// handleThresholds returns the active screen box and direction cut-offs
func (s *Server) handleThresholds(c *fiber.Ctx) error {
	th, dirs := s.tracker.Thresholds()
	return c.JSON(fiber.Map{
		"thresholds": th,
		"directions": dirs,
	})
}

// handleStartCalibration starts the flow named by :kind
func (s *Server) handleStartCalibration(c *fiber.Ctx) error {
	kind, ok := calibration.ParseKind(c.Params("kind"))
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown calibration kind: "+c.Params("kind"))
	}
	p, err := s.tracker.StartCalibration(kind)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) handleSkipCalibration(c *fiber.Ctx) error {
	p, err := s.tracker.SkipCalibration()
	if err != nil {
		return calibrationError(err)
	}
	return c.JSON(p)
}

func (s *Server) handleCancelCalibration(c *fiber.Ctx) error {
	if err := s.tracker.CancelCalibration(); err != nil {
		return calibrationError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func calibrationError(err error) error {
	if errors.Is(err, tracking.ErrNoCalibration) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

// handleResetSession clears session state; ?clear=true also drops the
// calibration back to defaults
func (s *Server) handleResetSession(c *fiber.Ctx) error {
	s.tracker.ResetSession(c.QueryBool("clear", false))
	return c.JSON(s.tracker.Status())
}

// handleListCalibrations returns stored calibrations, newest first
func (s *Server) handleListCalibrations(c *fiber.Ctx) error {
	if s.opts.Store == nil {
		return fiber.NewError(fiber.StatusNotFound, "no calibration store configured")
	}
	recs, err := s.opts.Store.List()
	if err != nil {
		return err
	}
	return c.JSON(recs)
}

func (s *Server) handleDeleteCalibration(c *fiber.Ctx) error {
	if s.opts.Store == nil {
		return fiber.NewError(fiber.StatusNotFound, "no calibration store configured")
	}
	if err := s.opts.Store.Delete(c.Params("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleGetCamera returns the current camera config
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return fiber.NewError(fiber.StatusNotFound, "camera control not available")
	}
	return c.JSON(s.opts.Camera.GetConfig())
}

// handleUpdateCamera applies a partial config, optionally based on a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return fiber.NewError(fiber.StatusNotFound, "camera control not available")
	}

	if err := s.opts.Camera.UpdateConfig(c.Body()); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.opts.Camera.GetConfig())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleGazeWS streams tracker updates, starting with the current status
func (s *Server) handleGazeWS(c *websocket.Conn) {
	var hello []hub.Message
	if data, err := json.Marshal(s.tracker.Status()); err == nil {
		hello = append(hello, hub.NewJSONMessage(data))
	}
	hub.NewClient(s.gazeHub, c, hello...).Run()
}

// handleEyesWS streams JPEG eye snapshots
func (s *Server) handleEyesWS(c *websocket.Conn) {
	hub.NewClient(s.eyesHub, c).Run()
}
