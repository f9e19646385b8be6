package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestLoadSettingsReturnsDefaultsWhenFileMissing(t *testing.T) {
	withTempHome(t)

	settings, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, 100, settings.CacheMaxSizeMB)
	assert.Equal(t, 30, settings.CacheTTLDays)
	assert.Equal(t, "bottom-left", settings.DefaultOverlayPosition)
	assert.Equal(t, "system", settings.Theme)
	assert.True(t, settings.TelemetryAnalytics)
	require.Len(t, settings.MapProviders, 1)
	assert.Equal(t, "OpenStreetMap", settings.MapProviders[0].Name)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	withTempHome(t)

	settings := DefaultSettings()
	settings.DefaultOverlayPosition = "top-right"
	settings.GPSOnlyFilter = true
	settings.Theme = "dark"
	settings.MapProviders = append(settings.MapProviders, MapProvider{
		Name:    "Satellite",
		URL:     "https://tiles.example.com/{z}/{x}/{y}.jpg",
		MaxZoom: 18,
		Enabled: true,
	})

	require.NoError(t, SaveSettings(settings))

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "top-right", loaded.DefaultOverlayPosition)
	assert.True(t, loaded.GPSOnlyFilter)
	assert.Equal(t, "dark", loaded.Theme)
	require.Len(t, loaded.MapProviders, 2)
	assert.Equal(t, "Satellite", loaded.MapProviders[1].Name)
}

func TestLoadSettingsMergesDefaultsForMissingFields(t *testing.T) {
	withTempHome(t)

	// A settings file written by an older version with fewer fields.
	partial := []byte(`{"theme": "dark", "gpsOnlyFilter": true}`)
	path := GetSettingsPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, partial, 0644))

	settings, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "dark", settings.Theme)
	assert.True(t, settings.GPSOnlyFilter)
	assert.Equal(t, 100, settings.CacheMaxSizeMB)
	assert.Equal(t, "bottom-left", settings.DefaultOverlayPosition)
	assert.Equal(t, "OpenStreetMap", settings.DefaultMapProvider)
	assert.NotEmpty(t, settings.OutputPath)
	require.Len(t, settings.MapProviders, 1)
}

func TestLoadSettingsRejectsCorruptFile(t *testing.T) {
	withTempHome(t)

	path := GetSettingsPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestValidateOverlayPosition(t *testing.T) {
	for _, pos := range []string{"top-left", "top-right", "bottom-left", "bottom-right"} {
		assert.NoError(t, ValidateOverlayPosition(pos))
	}
	assert.Error(t, ValidateOverlayPosition("center"))
	assert.Error(t, ValidateOverlayPosition(""))
}

func TestValidateMapProvider(t *testing.T) {
	assert.NoError(t, ValidateMapProvider(&MapProvider{Name: "OSM", URL: "https://tile.example.org/{z}/{x}/{y}.png"}))
	assert.Error(t, ValidateMapProvider(&MapProvider{URL: "https://tile.example.org/{z}/{x}/{y}.png"}))
	assert.Error(t, ValidateMapProvider(&MapProvider{Name: "OSM"}))
}
