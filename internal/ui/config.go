package ui

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config carries window and audio settings for the ebiten host.
type Config struct {
	Title          string // window title
	Scale          int    // integer upscaling factor
	AudioBufferMs  int    // audio player buffer, approximate
	CompatPalettes bool   // colorize monochrome cartridges
}

// Defaults fills missing fields with reasonable values.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.AudioBufferMs <= 0 {
		c.AudioBufferMs = 40
	}
}

func settingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gbccore", "settings.json"), nil
}

// loadSettings merges persisted settings over the given config; missing or
// unreadable files just leave the input untouched.
func loadSettings(cfg Config) Config {
	path, err := settingsPath()
	if err != nil {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var saved Config
	if json.Unmarshal(data, &saved) != nil {
		return cfg
	}
	if cfg.Scale <= 0 {
		cfg.Scale = saved.Scale
	}
	if cfg.AudioBufferMs <= 0 {
		cfg.AudioBufferMs = saved.AudioBufferMs
	}
	return cfg
}

// SaveSettings persists the current settings, best effort.
func (a *App) SaveSettings() {
	path, err := settingsPath()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(a.cfg, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}
