package pupil

import "fmt"

// Config holds the tunable parameters of the pupil pipeline
type Config struct {
	// Throughput
	FrameSkipCount int // Run the full pipeline on every Nth frame

	// Adaptive threshold
	CalibrationFrames int     // Evaluations per side before the threshold is frozen
	IrisCoverage      float64 // Target dark fraction of the eye interior (0-1)
	FixedThreshold    int     // >0 disables adaptive calibration and uses this value

	// Localisation
	DarkCutoff    uint8 // Binary pixels below this count as pupil
	MinDarkPixels int   // Fewer dark pixels than this is no detection
	MinRegionSide int   // Eye regions smaller than this (px) are rejected

	// Session
	RetainCalibration bool // Keep calibrator history across Stop/Start
}

// DefaultConfig returns the recommended configuration
func DefaultConfig() Config {
	return Config{
		FrameSkipCount: 10, // 3 full passes per second at 30 fps

		CalibrationFrames: CalibrationFrames,
		IrisCoverage:      IrisCoverage,
		FixedThreshold:    0,

		DarkCutoff:    DarkCutoff,
		MinDarkPixels: MinDarkPixels,
		MinRegionSide: MinRegionSide,

		RetainCalibration: true,
	}
}

// FastConfig trades responsiveness for CPU on slow machines
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameSkipCount = 15
	return cfg
}

// PreciseConfig processes more frames and demands a larger pupil blob
func PreciseConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameSkipCount = 3
	cfg.MinDarkPixels = 10
	return cfg
}

// Validate checks that the values are usable
func (c Config) Validate() error {
	if c.FrameSkipCount < 1 {
		return fmt.Errorf("frame skip count must be >= 1, got %d", c.FrameSkipCount)
	}
	if c.CalibrationFrames < 1 {
		return fmt.Errorf("calibration frames must be >= 1, got %d", c.CalibrationFrames)
	}
	if c.IrisCoverage <= 0 || c.IrisCoverage >= 1 {
		return fmt.Errorf("iris coverage must be in (0,1), got %v", c.IrisCoverage)
	}
	if c.FixedThreshold < 0 || c.FixedThreshold > 255 {
		return fmt.Errorf("fixed threshold must be 0 (adaptive) or 1-255, got %d", c.FixedThreshold)
	}
	if c.DarkCutoff == 0 {
		return fmt.Errorf("dark cutoff must be > 0")
	}
	if c.MinDarkPixels < 1 {
		return fmt.Errorf("min dark pixels must be >= 1, got %d", c.MinDarkPixels)
	}
	if c.MinRegionSide < 1 {
		return fmt.Errorf("min region side must be >= 1, got %d", c.MinRegionSide)
	}
	return nil
}
