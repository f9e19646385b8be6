package trajectory

const (
	// Tracks at or below this size are scanned exhaustively.
	twoPhaseThreshold = 1000

	// Coarse phase samples roughly this many points regardless of
	// track size.
	coarseSampleTarget = 200

	// Upper bound on the refinement window around the coarse match.
	maxRefineWindow = 100
)

// Nearest returns the sample in the track closest to the given
// coordinate, its index, and the distance in meters. Ties resolve to
// the earliest sample in track order. ok is false for an empty track.
//
// Large tracks use a two-phase search: a strided coarse pass followed
// by an exhaustive re-scan of a window around the best coarse sample.
// This assumes the true nearest point lies near the coarse match along
// the track's temporal ordering, which holds for typical out-and-back
// and loop routes.
func (t Track) Nearest(lat, lng float64) (p Point, idx int, dist float64, ok bool) {
	n := len(t)
	if n == 0 {
		return Point{}, 0, 0, false
	}
	if n <= twoPhaseThreshold {
		idx, dist = nearestInRange(t, lat, lng, 0, n)
		return t[idx], idx, dist, true
	}

	k := (n + coarseSampleTarget - 1) / coarseSampleTarget
	bestIdx := 0
	bestDist := t[0].DistanceTo(lat, lng)
	for i := k; i < n; i += k {
		if d := t[i].DistanceTo(lat, lng); d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}

	window := n / 20
	if window > maxRefineWindow {
		window = maxRefineWindow
	}
	lo := bestIdx - window
	if lo < 0 {
		lo = 0
	}
	hi := bestIdx + window + 1
	if hi > n {
		hi = n
	}

	idx, dist = nearestInRange(t, lat, lng, lo, hi)
	return t[idx], idx, dist, true
}

// nearestInRange scans t[lo:hi] exhaustively. Strict less-than keeps
// the earliest sample on equal distances.
func nearestInRange(t Track, lat, lng float64, lo, hi int) (int, float64) {
	bestIdx := lo
	bestDist := t[lo].DistanceTo(lat, lng)
	for i := lo + 1; i < hi; i++ {
		if d := t[i].DistanceTo(lat, lng); d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx, bestDist
}

// nearestLinear is the reference implementation used by tests to check
// that the two-phase search returns identical results.
func nearestLinear(t Track, lat, lng float64) (Point, int, float64, bool) {
	if len(t) == 0 {
		return Point{}, 0, 0, false
	}
	idx, dist := nearestInRange(t, lat, lng, 0, len(t))
	return t[idx], idx, dist, true
}
