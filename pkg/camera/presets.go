package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset1080p   = "1080p"
	PresetSmooth  = "smooth"
	PresetDim     = "dim"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowConfig(),
		Preset1080p:   HD1080Config(),
		PresetSmooth:  SmoothConfig(),
		PresetDim:     DimRoomConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLow,
		Preset1080p,
		PresetSmooth,
		PresetDim,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// HD1080Config returns 1080p for users sitting far from the camera.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// SmoothConfig trades resolution for framerate.
func SmoothConfig() Config {
	cfg := LowConfig()
	cfg.Framerate = 60
	return cfg
}

// DimRoomConfig brightens the image so pupils still separate from the iris.
func DimRoomConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 15 // Longer exposure per frame
	cfg.Brightness = 0.7
	cfg.Contrast = 0.6
	return cfg
}
