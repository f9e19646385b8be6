package trajectory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrNoTrajectory is returned by queries while no track is loaded.
var ErrNoTrajectory = errors.New("no trajectory loaded")

// TrackSource is the backend contract the store depends on.
// FetchFullTrajectory may return an empty slice when the activity has
// no detailed streams; FetchSummaryTrack is the low-fidelity fallback
// decoded from the activity's summary polyline. FetchNearestForClick
// is the server-side nearest-point query used in fallback mode.
type TrackSource interface {
	FetchFullTrajectory(ctx context.Context, activityID int64) ([]Point, error)
	FetchSummaryTrack(ctx context.Context, activityID int64) ([]Point, error)
	FetchNearestForClick(ctx context.Context, activityID int64, lat, lng float64) (*Point, error)
}

// NearestResult is the outcome of a nearest-point query.
type NearestResult struct {
	Point          Point   `json:"point"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// Store owns the trajectory of the currently selected activity.
// The track is replaced wholesale on activity change and never mutated
// in place; all other components read snapshots.
type Store struct {
	mu         sync.Mutex
	source     TrackSource
	activityID int64
	track      Track
	detailed   bool
	gen        uint64

	// onReplace fires synchronously while the old track is already
	// cleared, before the new fetch is issued. The app layer uses it
	// to reset the sync point so no stale state is visible during the
	// async gap.
	onReplace func()
}

// NewStore creates a trajectory store backed by the given source.
func NewStore(source TrackSource) *Store {
	return &Store{source: source}
}

// SetReplaceHook registers the callback fired when the held track is
// cleared for a new activity.
func (s *Store) SetReplaceHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReplace = fn
}

// LoadForActivity fetches the trajectory for an activity. Any held
// track is cleared before the fetch starts. When the detailed fetch
// fails or comes back empty the store falls back to the coarse summary
// track and reports IsDetailed()==false, since velocity-based queries
// are not available on the fallback.
func (s *Store) LoadForActivity(ctx context.Context, activityID int64) error {
	gen := s.beginLoad(activityID)
	return s.fetchAndInstall(ctx, activityID, gen)
}

// LoadForActivityAsync clears the held track before returning, then
// runs the fetch on its own goroutine. Callers switching activities use
// this so no query issued after the switch can see the previous
// activity's track. done receives the fetch outcome.
func (s *Store) LoadForActivityAsync(ctx context.Context, activityID int64, done func(error)) {
	gen := s.beginLoad(activityID)
	go func() {
		done(s.fetchAndInstall(ctx, activityID, gen))
	}()
}

// beginLoad drops the held track, fires the replace hook and returns
// the generation the eventual install must match.
func (s *Store) beginLoad(activityID int64) uint64 {
	s.mu.Lock()
	s.track = nil
	s.detailed = false
	s.activityID = activityID
	s.gen++
	gen := s.gen
	hook := s.onReplace
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return gen
}

func (s *Store) fetchAndInstall(ctx context.Context, activityID int64, gen uint64) error {
	points, err := s.source.FetchFullTrajectory(ctx, activityID)
	if err != nil || len(points) == 0 {
		if err != nil {
			log.Printf("[Trajectory] Detailed fetch failed for activity %d, trying summary fallback: %v", activityID, err)
		} else {
			log.Printf("[Trajectory] Activity %d has no detailed streams, trying summary fallback", activityID)
		}
		coarse, coarseErr := s.source.FetchSummaryTrack(ctx, activityID)
		if coarseErr != nil {
			return fmt.Errorf("failed to load trajectory for activity %d: %w", activityID, coarseErr)
		}
		if len(coarse) == 0 {
			return fmt.Errorf("activity %d has no GPS track", activityID)
		}
		return s.install(gen, coarse, false)
	}

	return s.install(gen, points, true)
}

// install publishes a fetched track unless a newer load superseded it
// while the fetch was in flight.
func (s *Store) install(gen uint64, points []Point, detailed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		log.Printf("[Trajectory] Discarding stale track load (superseded)")
		return nil
	}
	s.track = Track(points)
	s.detailed = detailed
	log.Printf("[Trajectory] Loaded %d points for activity %d (detailed=%v)", len(points), s.activityID, detailed)
	return nil
}

// Clear drops the held track.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = nil
	s.detailed = false
	s.activityID = 0
	s.gen++
}

// ActivityID returns the activity the held track belongs to, 0 when
// none is loaded.
func (s *Store) ActivityID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activityID
}

// IsDetailed reports whether the held track came from the detailed
// stream fetch rather than the coarse polyline fallback.
func (s *Store) IsDetailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailed
}

// Len returns the number of points currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.track)
}

// Snapshot returns a copy of the held track for rendering. The copy is
// safe to read while the store is replaced concurrently.
func (s *Store) Snapshot() Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.track) == 0 {
		return nil
	}
	out := make(Track, len(s.track))
	copy(out, s.track)
	return out
}

// NearestPoint answers a map-click query against the held track. In
// detailed mode the search runs locally; in fallback mode it delegates
// to the backend's server-side equivalent and only falls back to a
// local scan over the coarse points when that call fails.
func (s *Store) NearestPoint(ctx context.Context, lat, lng float64) (NearestResult, error) {
	s.mu.Lock()
	track := s.track
	detailed := s.detailed
	activityID := s.activityID
	s.mu.Unlock()

	if len(track) == 0 {
		return NearestResult{}, ErrNoTrajectory
	}

	if !detailed {
		if remote, err := s.source.FetchNearestForClick(ctx, activityID, lat, lng); err == nil && remote != nil {
			return NearestResult{Point: *remote, DistanceMeters: remote.DistanceTo(lat, lng)}, nil
		} else if err != nil {
			log.Printf("[Trajectory] Server-side nearest lookup failed, scanning coarse track: %v", err)
		}
	}

	p, _, dist, ok := track.Nearest(lat, lng)
	if !ok {
		return NearestResult{}, ErrNoTrajectory
	}
	return NearestResult{Point: p, DistanceMeters: dist}, nil
}
