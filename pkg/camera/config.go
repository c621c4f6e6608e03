// Package camera opens the webcam and tunes it at runtime.
package camera

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Device is an OpenCV device index ("0") or a video file/stream URL.
	Device string `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS

	// === Image ===
	// Brightness and Contrast are passed straight to the driver (0 = leave
	// at driver default).
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`

	// AutoExposure toggles the driver's automatic exposure.
	AutoExposure bool `json:"auto_exposure"`

	// Mirror flips frames horizontally, as front cameras usually show them.
	Mirror bool `json:"mirror"`
}

// Capture limits
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 720p at 30 fps from the first camera. Eyes need
// enough pixels to pass the 10px region gate at normal desk distance.
func DefaultConfig() Config {
	return Config{
		Device:       "0",
		Width:        1280,
		Height:       720,
		Framerate:    30,
		AutoExposure: true,
		Mirror:       false,
	}
}

// LowConfig returns the 640x480 configuration for slow machines.
func LowConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device must not be empty")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Brightness < 0 || c.Contrast < 0 {
		errors = append(errors, "brightness and contrast must be >= 0")
	}

	return errors
}

// Capabilities returns what the capture layer supports.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"backend":       "opencv",
		"min_width":     MinWidth,
		"min_height":    MinHeight,
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
