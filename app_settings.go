package main

import (
	"fmt"
	"log"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"overlay-studio/internal/config"
)

// GetSettings returns the current user settings
func (a *App) GetSettings() *config.UserSettings {
	return a.currentSettings()
}

// SaveSettings validates and persists user settings
func (a *App) SaveSettings(settings config.UserSettings) error {
	if err := config.ValidateOverlayPosition(settings.DefaultOverlayPosition); err != nil {
		return err
	}
	for i := range settings.MapProviders {
		if err := config.ValidateMapProvider(&settings.MapProviders[i]); err != nil {
			return fmt.Errorf("map provider %d: %w", i, err)
		}
	}

	if err := config.SaveSettings(&settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	a.updateSettings(&settings)
	log.Printf("[App] Settings saved")
	wailsRuntime.EventsEmit(a.ctx, "settings-changed", &settings)
	return nil
}

// ResetSettings restores defaults and persists them
func (a *App) ResetSettings() (*config.UserSettings, error) {
	defaults := config.DefaultSettings()
	if err := config.SaveSettings(defaults); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	a.updateSettings(defaults)
	wailsRuntime.EventsEmit(a.ctx, "settings-changed", defaults)
	return defaults, nil
}

// SelectOutputFolder opens a folder picker for the output directory
func (a *App) SelectOutputFolder() (string, error) {
	path, err := wailsRuntime.OpenDirectoryDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:            "Select Output Folder",
		DefaultDirectory: a.currentSettings().OutputPath,
	})
	if err != nil {
		return "", err
	}

	if path != "" {
		a.mu.Lock()
		a.settings.OutputPath = path
		settings := a.settings
		a.mu.Unlock()
		if err := config.SaveSettings(settings); err != nil {
			return "", fmt.Errorf("failed to save settings: %w", err)
		}
	}

	return path, nil
}

// GetCacheStats returns cache usage for the settings screen
func (a *App) GetCacheStats() map[string]interface{} {
	if a.store == nil {
		return map[string]interface{}{"enabled": false}
	}
	entries, size, max := a.store.Stats()
	return map[string]interface{}{
		"enabled":   true,
		"entries":   entries,
		"sizeBytes": size,
		"maxBytes":  max,
		"path":      a.store.Path(),
	}
}

// ClearCache removes all cached Strava payloads
func (a *App) ClearCache() error {
	if a.store == nil {
		return nil
	}
	return a.store.Clear()
}
