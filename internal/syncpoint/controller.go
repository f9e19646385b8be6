// Package syncpoint resolves the single authoritative video-to-track
// synchronization point. The sync point either comes from an automatic
// guess keyed by (activity, video) or a manual trajectory click; manual
// always wins and sticks until the selection changes.
package syncpoint

import (
	"context"
	"log"
	"sync"
	"time"

	"overlay-studio/internal/trajectory"
)

// Source identifies where the current sync point came from.
type Source string

const (
	SourceNone      Source = "none"
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
)

// SyncPoint is the trajectory sample treated as corresponding to the
// video's first frame. Time is empty while Source is none.
type SyncPoint struct {
	Source Source  `json:"source"`
	Time   string  `json:"time"` // RFC3339, "" when undetermined
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// AutoSyncSource is the backend contract for the automatic guess.
// A nil point with nil error is a defined no-match outcome, not a
// failure.
type AutoSyncSource interface {
	FetchAutoSyncPoint(ctx context.Context, activityID int64, videoPath string) (*trajectory.Point, error)
}

// Controller owns the sync point for the current (activity, video)
// pairing.
type Controller struct {
	mu     sync.Mutex
	source AutoSyncSource
	point  SyncPoint
}

// NewController creates a controller in the undetermined state.
func NewController(source AutoSyncSource) *Controller {
	return &Controller{
		source: source,
		point:  SyncPoint{Source: SourceNone},
	}
}

// OnVideoSelected resets the sync point for the new video and asks the
// backend for an automatic guess. A missing guess leaves the controller
// undetermined and is not an error: the caller prompts for a manual
// click instead. A failed lookup is also mapped to undetermined, with
// the error returned so it can be surfaced.
func (c *Controller) OnVideoSelected(ctx context.Context, activityID int64, videoPath string) (SyncPoint, error) {
	c.Reset()

	point, err := c.source.FetchAutoSyncPoint(ctx, activityID, videoPath)
	if err != nil {
		log.Printf("[Sync] Automatic sync lookup failed for activity %d: %v", activityID, err)
		return c.Current(), err
	}
	if point == nil {
		log.Printf("[Sync] No automatic sync match for activity %d, manual click required", activityID)
		return c.Current(), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A manual click may have landed while the lookup was in flight;
	// automatic never overrides manual.
	if c.point.Source == SourceManual {
		return c.point, nil
	}
	c.point = SyncPoint{
		Source: SourceAutomatic,
		Time:   formatTime(point.Time),
		Lat:    point.Lat,
		Lng:    point.Lng,
	}
	log.Printf("[Sync] Automatic sync point at %s", c.point.Time)
	return c.point, nil
}

// OnTrajectoryClick installs a manual sync point from a nearest-point
// query. Manual input always wins regardless of the current state.
func (c *Controller) OnTrajectoryClick(p trajectory.Point) SyncPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.point = SyncPoint{
		Source: SourceManual,
		Time:   formatTime(p.Time),
		Lat:    p.Lat,
		Lng:    p.Lng,
	}
	log.Printf("[Sync] Manual sync point at %s", c.point.Time)
	return c.point
}

// Reset returns the controller to the undetermined state. Called on
// activity change and on new video selection: both the automatic guess
// and a manual override are scoped to one (activity, video) pairing.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.point = SyncPoint{Source: SourceNone}
}

// Current returns a snapshot of the sync point.
func (c *Controller) Current() SyncPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.point
}

// formatTime renders a point timestamp, keeping the "" sentinel for
// points that carry no timing (coarse polyline samples).
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ResolvedSyncTime returns the RFC3339 time of the current sync point,
// or the empty string while undetermined. The empty sentinel is passed
// through to the backend, which treats it as "use track start"; the
// controller never invents a time.
func (c *Controller) ResolvedSyncTime() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.point.Time
}
