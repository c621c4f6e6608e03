package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// Callback when config changes (for applying to camera)
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, stores it and applies it.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig applies a partial JSON config. A "preset" key replaces the
// whole config first (keeping the device); the remaining keys overlay it.
func (m *Manager) UpdateConfig(patch []byte) error {
	var sel struct {
		Preset string `json:"preset"`
	}
	if err := json.Unmarshal(patch, &sel); err != nil {
		return fmt.Errorf("invalid camera config: %w", err)
	}

	cfg := m.GetConfig()
	if sel.Preset != "" {
		preset := GetPreset(sel.Preset)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", sel.Preset)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device // presets never switch cameras
	}
	if err := json.Unmarshal(patch, &cfg); err != nil {
		return fmt.Errorf("invalid camera config: %w", err)
	}
	return m.SetConfig(cfg)
}
