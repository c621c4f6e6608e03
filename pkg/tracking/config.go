package tracking

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/pupil"
)

// Config holds all tunable parameters for a gaze tracking session
type Config struct {
	// Pipeline
	Pupil pupil.Config

	// Calibration flows
	NinePoint calibration.NinePointConfig
	Screen    calibration.ScreenConfig

	// Attention debounce
	LookingAfter time.Duration // On-screen this long before Looking
	AwayAfter    time.Duration // Off-screen or faceless this long before Away

	// Screen box
	ScreenMargin float64 // Widens the calibrated box on every side (ratio units)
	ScaleForFace bool    // Rescale the box with face distance
	MaxFaceYaw   float64 // |yaw| in degrees above this counts as away (0 disables)

	// Timing
	FrameInterval time.Duration // Run loop pacing
	MaxMisses     int           // Consecutive read/detect failures before a warning
}

// DefaultConfig returns the recommended configuration for a laptop webcam
func DefaultConfig() Config {
	return Config{
		Pupil: pupil.DefaultConfig(),

		NinePoint: calibration.DefaultNinePointConfig(),
		Screen:    calibration.DefaultScreenConfig(),

		LookingAfter: 300 * time.Millisecond,
		AwayAfter:    1500 * time.Millisecond, // Blinks and glances stay Looking

		ScreenMargin: 0.03,
		ScaleForFace: true,
		MaxFaceYaw:   25,

		FrameInterval: 33 * time.Millisecond, // ~30 fps
		MaxMisses:     30,
	}
}

// LowPowerConfig runs the pupil pipeline less often and polls slower
func LowPowerConfig() Config {
	cfg := DefaultConfig()
	cfg.Pupil = pupil.FastConfig()
	cfg.FrameInterval = 66 * time.Millisecond
	cfg.AwayAfter = 2 * time.Second
	return cfg
}

// StrictConfig reports Away quickly and does not widen the box
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.Pupil = pupil.PreciseConfig()
	cfg.AwayAfter = 500 * time.Millisecond
	cfg.ScreenMargin = 0
	cfg.MaxFaceYaw = 15
	return cfg
}

// Validate checks that the values are usable
func (c Config) Validate() error {
	if err := c.Pupil.Validate(); err != nil {
		return fmt.Errorf("pupil: %w", err)
	}
	if c.NinePoint.SamplesPerStep < 1 {
		return fmt.Errorf("nine-point samples per step must be >= 1, got %d", c.NinePoint.SamplesPerStep)
	}
	if c.Screen.SamplesPerTarget < 1 {
		return fmt.Errorf("screen samples per target must be >= 1, got %d", c.Screen.SamplesPerTarget)
	}
	if c.LookingAfter < 0 || c.AwayAfter < 0 {
		return fmt.Errorf("attention delays must be >= 0")
	}
	if c.ScreenMargin < 0 || c.ScreenMargin > 0.5 {
		return fmt.Errorf("screen margin must be in [0,0.5], got %v", c.ScreenMargin)
	}
	if c.MaxFaceYaw < 0 {
		return fmt.Errorf("max face yaw must be >= 0, got %v", c.MaxFaceYaw)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be > 0, got %v", c.FrameInterval)
	}
	return nil
}
