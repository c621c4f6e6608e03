// Package config provides environment overrides for go-gaze commands.
// GAZE_* variables replace the built-in defaults; command-line flags
// override both.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Default daemon configuration.
const (
	DefaultPort      = "8090"
	DefaultLandmarks = "yunet"
	DefaultLogLevel  = "info"
)

// Environment variable names.
const (
	EnvCameraDevice = "GAZE_CAMERA_DEVICE"
	EnvFrameSkip    = "GAZE_FRAME_SKIP"
	EnvPort         = "GAZE_PORT"
	EnvStorePath    = "GAZE_STORE_PATH"
	EnvLandmarks    = "GAZE_LANDMARKS"
	EnvModelPath    = "GAZE_MODEL_PATH"
	EnvLogLevel     = "GAZE_LOG_LEVEL"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// CameraDevice returns the camera index or URL from GAZE_CAMERA_DEVICE.
func CameraDevice(def string) string {
	return env(EnvCameraDevice, def)
}

// FrameSkip returns GAZE_FRAME_SKIP. A malformed or non-positive value is
// an error rather than a silent fallback.
func FrameSkip(def int) (int, error) {
	v := os.Getenv(EnvFrameSkip)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", EnvFrameSkip, v)
	}
	return n, nil
}

// Port returns the dashboard port from GAZE_PORT.
func Port(def string) string {
	return env(EnvPort, def)
}

// ListenAddr returns ":<port>".
func ListenAddr(port string) string {
	return ":" + port
}

// StorePath returns GAZE_STORE_PATH. Empty means the store default.
func StorePath(def string) string {
	return env(EnvStorePath, def)
}

// Landmarks returns the landmark backend name from GAZE_LANDMARKS.
func Landmarks(def string) string {
	return env(EnvLandmarks, def)
}

// ModelPath returns the YuNet model path from GAZE_MODEL_PATH.
func ModelPath(def string) string {
	return env(EnvModelPath, def)
}

// LogLevel returns GAZE_LOG_LEVEL.
func LogLevel(def string) string {
	return env(EnvLogLevel, def)
}
