package trajectory

import (
	"time"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Point is a single GPS sample. Points are produced by the stream
// processor (or decoded from a summary polyline) and never mutated.
type Point struct {
	Time     time.Time `json:"time"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Velocity float64   `json:"velocity"` // m/s
	Altitude float64   `json:"altitude"` // meters
	Bearing  float64   `json:"bearing"`  // degrees, 0-360
	GForce   float64   `json:"gForce"`
}

// DistanceTo returns the great-circle distance in meters from p to the
// given coordinate.
func (p Point) DistanceTo(lat, lng float64) float64 {
	a := s2.LatLngFromDegrees(p.Lat, p.Lng)
	b := s2.LatLngFromDegrees(lat, lng)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// Track is a time-ordered sequence of GPS samples for one activity.
// A Track handed out by the Store is a snapshot; callers must not
// modify it.
type Track []Point

// Duration returns the time span covered by the track.
func (t Track) Duration() time.Duration {
	if len(t) < 2 {
		return 0
	}
	return t[len(t)-1].Time.Sub(t[0].Time)
}

// Start returns the timestamp of the first sample.
func (t Track) Start() (time.Time, bool) {
	if len(t) == 0 {
		return time.Time{}, false
	}
	return t[0].Time, true
}
