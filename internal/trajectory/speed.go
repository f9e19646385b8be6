package trajectory

// SpeedBand is one segment-coloring bucket. Banding is a presentation
// derivative of the track; the thresholds are part of the frontend
// contract and must stay stable.
type SpeedBand struct {
	MaxKmh float64 `json:"maxKmh"` // inclusive upper bound, 0 means open-ended
	Label  string  `json:"label"`
	Color  string  `json:"color"`
}

// SpeedBands lists the banding thresholds in ascending order. The last
// band is open-ended.
var SpeedBands = []SpeedBand{
	{MaxKmh: 3, Label: "stopped", Color: "#6c757d"},
	{MaxKmh: 8, Label: "very slow", Color: "#0d6efd"},
	{MaxKmh: 15, Label: "slow", Color: "#198754"},
	{MaxKmh: 25, Label: "moderate", Color: "#fd7e14"},
	{MaxKmh: 40, Label: "fast", Color: "#d63384"},
	{MaxKmh: 0, Label: "very fast", Color: "#dc3545"},
}

// SpeedColor returns the segment color for an instantaneous speed given
// in m/s.
func SpeedColor(velocityMS float64) string {
	return BandForSpeed(velocityMS).Color
}

// BandForSpeed returns the band an instantaneous speed (m/s) falls in.
func BandForSpeed(velocityMS float64) SpeedBand {
	kmh := velocityMS * 3.6
	for _, band := range SpeedBands[:len(SpeedBands)-1] {
		if kmh <= band.MaxKmh {
			return band
		}
	}
	return SpeedBands[len(SpeedBands)-1]
}
