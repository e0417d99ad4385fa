// Package prefs persists small user choices between runs in
// ~/.config/spotigui/prefs.toml. Unreadable files fall back to defaults.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds user preferences.
type Prefs struct {
	// DeviceID is the last device the user transferred playback to.
	DeviceID   string `toml:"device_id"`
	DeviceName string `toml:"device_name"`
	// VolumeStep is the percentage added or removed per volume key press.
	VolumeStep int `toml:"volume_step"`
}

const (
	defaultPrefsPath  = "~/.config/spotigui/prefs.toml"
	defaultVolumeStep = 5
	maxVolumeStep     = 25
)

// Defaults returns the preferences used when nothing is stored.
func Defaults() Prefs {
	return Prefs{VolumeStep: defaultVolumeStep}
}

// Load reads preferences from path, falling back to defaults when the file is
// missing or malformed.
func Load(path string) Prefs {
	prefs := Defaults()

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return prefs
	}
	if err := toml.Unmarshal(data, &prefs); err != nil {
		return Defaults()
	}

	prefs.DeviceID = strings.TrimSpace(prefs.DeviceID)
	prefs.DeviceName = strings.TrimSpace(prefs.DeviceName)
	if prefs.VolumeStep <= 0 || prefs.VolumeStep > maxVolumeStep {
		prefs.VolumeStep = defaultVolumeStep
	}
	return prefs
}

// Save writes preferences to path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// RememberDevice records id/name as the preferred device and saves.
func RememberDevice(path, id, name string) error {
	p := Load(path)
	if p.DeviceID == id && p.DeviceName == name {
		return nil
	}
	p.DeviceID = id
	p.DeviceName = name
	return Save(path, p)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
