package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MapProvider represents a configurable map tile source for the route
// map view
type MapProvider struct {
	Name        string `json:"name"`
	URL         string `json:"url"` // XYZ template URL
	Attribution string `json:"attribution,omitempty"`
	MaxZoom     int    `json:"maxZoom,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// UserSettings represents persistent user preferences
type UserSettings struct {
	// Output settings
	OutputPath string `json:"outputPath"`

	// Cache settings
	CacheMaxSizeMB int `json:"cacheMaxSizeMB"`
	CacheTTLDays   int `json:"cacheTTLDays"`

	// Overlay defaults
	DefaultOverlayPosition string `json:"defaultOverlayPosition"` // "top-left", "top-right", "bottom-left", "bottom-right"

	// Activity list preferences
	GPSOnlyFilter bool `json:"gpsOnlyFilter"`

	// Map settings
	MapProviders       []MapProvider `json:"mapProviders"`
	DefaultMapProvider string        `json:"defaultMapProvider"`

	// UI preferences
	Theme              string `json:"theme"` // "light", "dark", "system"
	AutoOpenOutputDir  bool   `json:"autoOpenOutputDir"`
	ShowSpeedColorKey  bool   `json:"showSpeedColorKey"`
	TelemetryAnalytics bool   `json:"telemetryAnalytics"`
}

// DefaultSettings returns default user settings
func DefaultSettings() *UserSettings {
	homeDir, _ := os.UserHomeDir()
	outputPath := filepath.Join(homeDir, "Telemetry Overlay Studio")

	return &UserSettings{
		OutputPath:             outputPath,
		CacheMaxSizeMB:         100,
		CacheTTLDays:           30,
		DefaultOverlayPosition: "bottom-left",
		GPSOnlyFilter:          false,
		MapProviders: []MapProvider{
			{
				Name:        "OpenStreetMap",
				URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
				Attribution: "© OpenStreetMap contributors",
				MaxZoom:     19,
				Enabled:     true,
			},
		},
		DefaultMapProvider: "OpenStreetMap",
		Theme:              "system",
		AutoOpenOutputDir:  true,
		ShowSpeedColorKey:  true,
		TelemetryAnalytics: true,
	}
}

// GetSettingsPath returns the OS-specific settings file path
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()

	baseDir := filepath.Join(homeDir, ".overlay-studio", "settings")

	// Ensure directory exists
	os.MkdirAll(baseDir, 0755)

	return filepath.Join(baseDir, "settings.json")
}

// LoadSettings loads user settings from disk
func LoadSettings() (*UserSettings, error) {
	settingsPath := GetSettingsPath()

	// If file doesn't exist, return defaults
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Merge with defaults for any missing fields
	defaults := DefaultSettings()
	if settings.OutputPath == "" {
		settings.OutputPath = defaults.OutputPath
	}
	if settings.CacheMaxSizeMB == 0 {
		settings.CacheMaxSizeMB = defaults.CacheMaxSizeMB
	}
	if settings.CacheTTLDays == 0 {
		settings.CacheTTLDays = defaults.CacheTTLDays
	}
	if settings.DefaultOverlayPosition == "" {
		settings.DefaultOverlayPosition = defaults.DefaultOverlayPosition
	}
	if len(settings.MapProviders) == 0 {
		settings.MapProviders = defaults.MapProviders
	}
	if settings.DefaultMapProvider == "" {
		settings.DefaultMapProvider = defaults.DefaultMapProvider
	}
	if settings.Theme == "" {
		settings.Theme = defaults.Theme
	}

	return &settings, nil
}

// SaveSettings saves user settings to disk
func SaveSettings(settings *UserSettings) error {
	settingsPath := GetSettingsPath()

	// Ensure directory exists
	dir := filepath.Dir(settingsPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// ValidateOverlayPosition checks a position preset name
func ValidateOverlayPosition(position string) error {
	valid := map[string]bool{
		"top-left":     true,
		"top-right":    true,
		"bottom-left":  true,
		"bottom-right": true,
	}
	if !valid[position] {
		return fmt.Errorf("invalid overlay position: %s (must be top-left, top-right, bottom-left or bottom-right)", position)
	}
	return nil
}

// ValidateMapProvider validates a map provider configuration
func ValidateMapProvider(provider *MapProvider) error {
	if provider.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if provider.URL == "" {
		return fmt.Errorf("provider URL is required")
	}
	return nil
}
