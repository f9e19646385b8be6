// Package gps turns raw Strava activity streams into a clean,
// per-second GPS track with derived bearing and g-force, and answers
// time-based lookups against it.
package gps

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/s2"

	"overlay-studio/internal/trajectory"
)

const gravity = 9.81 // m/s²

// Processor builds and holds the processed track for one activity.
type Processor struct {
	points []trajectory.Point
}

// NewProcessor returns an empty processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// ProcessStreams converts the raw time/latlng/velocity/altitude streams
// into an interpolated 1 Hz track anchored at the activity start time.
// Samples with missing or out-of-range coordinates are dropped; (0,0)
// counts as missing since Strava emits it for GPS dropouts.
func (p *Processor) ProcessStreams(timeData, latlngData, velocityData, altitudeData []interface{}, startTime time.Time) error {
	if len(timeData) != len(latlngData) {
		return fmt.Errorf("stream length mismatch: time=%d latlng=%d", len(timeData), len(latlngData))
	}

	raw := make([]trajectory.Point, 0, len(timeData))
	for i := 0; i < len(timeData); i++ {
		offset, ok := timeData[i].(float64)
		if !ok {
			continue
		}
		pair, ok := latlngData[i].([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}
		lat, ok1 := pair[0].(float64)
		lng, ok2 := pair[1].(float64)
		if !ok1 || !ok2 || !validCoordinate(lat, lng) {
			continue
		}

		point := trajectory.Point{
			Time: startTime.Add(time.Duration(offset * float64(time.Second))),
			Lat:  lat,
			Lng:  lng,
		}
		if v, ok := floatAt(velocityData, i); ok {
			point.Velocity = v
		}
		if a, ok := floatAt(altitudeData, i); ok {
			point.Altitude = a
		}
		if len(raw) > 0 {
			prev := raw[len(raw)-1]
			point.Bearing = bearing(prev, point)
			point.GForce = gForce(prev, point)
		}
		raw = append(raw, point)
	}

	if len(raw) == 0 {
		return fmt.Errorf("no valid GPS samples in streams")
	}

	p.points = interpolate(raw)
	return nil
}

// Points returns the processed track.
func (p *Processor) Points() []trajectory.Point {
	return p.points
}

// SetPoints adopts an already-processed track so time lookups can run
// against it without re-deriving from raw streams.
func (p *Processor) SetPoints(points []trajectory.Point) {
	p.points = points
}

// PointForTime returns the sample closest in time to the target.
func (p *Processor) PointForTime(target time.Time) (trajectory.Point, bool) {
	if len(p.points) == 0 {
		return trajectory.Point{}, false
	}
	best := p.points[0]
	minDiff := absDuration(best.Time.Sub(target))
	for _, point := range p.points[1:] {
		if diff := absDuration(point.Time.Sub(target)); diff < minDiff {
			minDiff = diff
			best = point
		}
	}
	return best, true
}

// PointsForTimeRange returns the samples covering [start, end],
// inclusive of the first sample at or after each bound.
func (p *Processor) PointsForTimeRange(start, end time.Time) []trajectory.Point {
	startIdx, endIdx := -1, -1
	for i, point := range p.points {
		if startIdx == -1 && !point.Time.Before(start) {
			startIdx = i
		}
		if endIdx == -1 && !point.Time.Before(end) {
			endIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}
	if endIdx == -1 {
		endIdx = len(p.points) - 1
	}
	return p.points[startIdx : endIdx+1]
}

// interpolate fills gaps longer than one second with linear
// intermediate samples so the overlay has a smooth value per frame.
// Bearing and g-force carry over from the segment start.
func interpolate(points []trajectory.Point) []trajectory.Point {
	if len(points) < 2 {
		return points
	}

	out := make([]trajectory.Point, 0, len(points))
	for i := 0; i < len(points)-1; i++ {
		p1, p2 := points[i], points[i+1]
		out = append(out, p1)

		gap := p2.Time.Sub(p1.Time)
		if gap <= time.Second {
			continue
		}
		for t := time.Second; t < gap; t += time.Second {
			ratio := float64(t) / float64(gap)
			out = append(out, trajectory.Point{
				Time:     p1.Time.Add(t),
				Lat:      p1.Lat + ratio*(p2.Lat-p1.Lat),
				Lng:      p1.Lng + ratio*(p2.Lng-p1.Lng),
				Altitude: p1.Altitude + ratio*(p2.Altitude-p1.Altitude),
				Velocity: p1.Velocity + ratio*(p2.Velocity-p1.Velocity),
				Bearing:  p1.Bearing,
				GForce:   p1.GForce,
			})
		}
	}
	return append(out, points[len(points)-1])
}

// bearing returns the forward azimuth from one sample to the next in
// degrees 0-360.
func bearing(from, to trajectory.Point) float64 {
	a := s2.LatLngFromDegrees(from.Lat, from.Lng)
	b := s2.LatLngFromDegrees(to.Lat, to.Lng)

	lat1 := a.Lat.Radians()
	lat2 := b.Lat.Radians()
	deltaLng := b.Lng.Radians() - a.Lng.Radians()

	y := math.Sin(deltaLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// gForce returns the longitudinal acceleration between two samples in
// multiples of g.
func gForce(from, to trajectory.Point) float64 {
	deltaT := to.Time.Sub(from.Time).Seconds()
	if deltaT == 0 {
		return 0
	}
	return (to.Velocity - from.Velocity) / deltaT / gravity
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func floatAt(data []interface{}, i int) (float64, bool) {
	if data == nil || i >= len(data) || data[i] == nil {
		return 0, false
	}
	v, ok := data[i].(float64)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
