package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandForSpeed(t *testing.T) {
	tests := []struct {
		name      string
		kmh       float64
		wantLabel string
		wantColor string
	}{
		{"zero", 0, "stopped", "#6c757d"},
		{"stopped", 2.5, "stopped", "#6c757d"},
		{"very slow", 5, "very slow", "#0d6efd"},
		{"slow", 12, "slow", "#198754"},
		{"moderate", 20, "moderate", "#fd7e14"},
		{"fast", 30, "fast", "#d63384"},
		{"very fast", 60, "very fast", "#dc3545"},
		{"extreme", 200, "very fast", "#dc3545"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			band := BandForSpeed(tt.kmh / 3.6)
			assert.Equal(t, tt.wantLabel, band.Label)
			assert.Equal(t, tt.wantColor, band.Color)
			assert.Equal(t, tt.wantColor, SpeedColor(tt.kmh/3.6))
		})
	}
}

func TestBandBoundariesInclusive(t *testing.T) {
	// Upper bounds are inclusive: exactly 3 km/h is still stopped.
	assert.Equal(t, "stopped", BandForSpeed(3.0/3.6*0.999999).Label)
	assert.Equal(t, "very slow", BandForSpeed(3.5/3.6).Label)
	assert.Equal(t, "fast", BandForSpeed(39.9/3.6).Label)
	assert.Equal(t, "very fast", BandForSpeed(40.1/3.6).Label)
}
