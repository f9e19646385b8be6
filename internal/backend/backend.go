// Package backend adapts the Strava client, the GPS processor and the
// disk cache to the narrow source contracts the coordination components
// depend on.
package backend

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"overlay-studio/internal/cache"
	"overlay-studio/internal/catalogue"
	"overlay-studio/internal/gps"
	"overlay-studio/internal/strava"
	"overlay-studio/internal/trajectory"
	"overlay-studio/internal/video"
)

// Backend implements the page, track and auto-sync source contracts
// over the Strava API with disk caching for the heavy payloads.
type Backend struct {
	client *strava.Client
	store  *cache.Store

	mu          sync.Mutex
	trackID     int64 // activity whose processed track is memoized
	track       []trajectory.Point
	trackDetail *strava.ActivityDetail
}

// New creates a backend. The cache store may be nil, in which case
// every call goes to the API.
func New(client *strava.Client, store *cache.Store) *Backend {
	return &Backend{client: client, store: store}
}

// FetchActivitiesPage loads one page of the athlete's activities.
func (b *Backend) FetchActivitiesPage(ctx context.Context, page int) (catalogue.Page, error) {
	activities, hasMore, err := b.client.GetActivitiesPage(ctx, page, catalogue.PerPage)
	if err != nil {
		return catalogue.Page{}, fmt.Errorf("failed to fetch activities page %d: %w", page, err)
	}

	summaries := make([]catalogue.Summary, 0, len(activities))
	for _, act := range activities {
		summaries = append(summaries, catalogue.Summary{
			ID:                act.ID,
			Name:              act.Name,
			Type:              act.Type,
			StartDate:         act.StartDate.Format(time.RFC3339),
			DistanceMeters:    act.Distance,
			MovingTimeSeconds: act.MovingTime,
			MaxSpeed:          act.MaxSpeed,
			HasGPS:            act.HasGPS(),
		})
	}
	return catalogue.Page{Activities: summaries, HasMore: hasMore}, nil
}

// FetchFullTrajectory loads and processes the detailed GPS track of an
// activity.
func (b *Backend) FetchFullTrajectory(ctx context.Context, activityID int64) ([]trajectory.Point, error) {
	points, _, err := b.fullTrack(ctx, activityID)
	return points, err
}

// FetchSummaryTrack decodes the activity's summary polyline into a
// coarse track. The points carry coordinates only; no timing or
// telemetry is available at this fidelity.
func (b *Backend) FetchSummaryTrack(ctx context.Context, activityID int64) ([]trajectory.Point, error) {
	detail, err := b.activityDetail(ctx, activityID)
	if err != nil {
		return nil, err
	}
	coords, err := strava.DecodeSummaryPolyline(detail.Map)
	if err != nil {
		return nil, fmt.Errorf("failed to decode summary polyline: %w", err)
	}

	points := make([]trajectory.Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, trajectory.Point{Lat: c[0], Lng: c[1]})
	}
	return points, nil
}

// FetchNearestForClick answers a map click with the exact nearest
// detailed point, even when the client only holds the coarse track.
func (b *Backend) FetchNearestForClick(ctx context.Context, activityID int64, lat, lng float64) (*trajectory.Point, error) {
	points, _, err := b.fullTrack(ctx, activityID)
	if err != nil {
		return nil, err
	}
	p, _, _, ok := trajectory.Track(points).Nearest(lat, lng)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// FetchAutoSyncPoint matches a video's creation timestamp against the
// activity track. Returns nil with no error when the video carries no
// usable timestamp or falls outside the activity window.
func (b *Backend) FetchAutoSyncPoint(ctx context.Context, activityID int64, videoPath string) (*trajectory.Point, error) {
	meta, err := video.Probe(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	if meta.CreationTime.IsZero() {
		log.Printf("[Backend] Video %s has no creation timestamp, skipping auto-sync", videoPath)
		return nil, nil
	}

	points, detail, err := b.fullTrack(ctx, activityID)
	if err != nil {
		return nil, err
	}

	videoStart := correctToActivityZone(meta.CreationTime, detail.Timezone)

	track := trajectory.Track(points)
	start, _ := track.Start()
	end := start.Add(track.Duration())
	if videoStart.Before(start) || videoStart.After(end) {
		log.Printf("[Backend] Video start %s outside activity window [%s, %s]",
			videoStart.Format(time.RFC3339), start.Format(time.RFC3339), end.Format(time.RFC3339))
		return nil, nil
	}

	proc := gps.NewProcessor()
	proc.SetPoints(points)
	if p, ok := proc.PointForTime(videoStart); ok {
		return &p, nil
	}
	return nil, nil
}

// fullTrack loads, processes and memoizes the detailed track of one
// activity. Only the last activity is kept; selection changes replace
// it wholesale.
func (b *Backend) fullTrack(ctx context.Context, activityID int64) ([]trajectory.Point, *strava.ActivityDetail, error) {
	b.mu.Lock()
	if b.trackID == activityID && b.track != nil {
		points, detail := b.track, b.trackDetail
		b.mu.Unlock()
		return points, detail, nil
	}
	b.mu.Unlock()

	detail, err := b.activityDetail(ctx, activityID)
	if err != nil {
		return nil, nil, err
	}

	streams, err := b.activityStreams(ctx, activityID)
	if err != nil {
		return nil, nil, err
	}

	proc := gps.NewProcessor()
	if err := proc.ProcessStreams(
		streamData(streams, "time"),
		streamData(streams, "latlng"),
		streamData(streams, "velocity_smooth"),
		streamData(streams, "altitude"),
		detail.StartDate,
	); err != nil {
		return nil, nil, fmt.Errorf("failed to process GPS streams: %w", err)
	}
	points := proc.Points()

	b.mu.Lock()
	b.trackID = activityID
	b.track = points
	b.trackDetail = detail
	b.mu.Unlock()

	return points, detail, nil
}

func (b *Backend) activityDetail(ctx context.Context, activityID int64) (*strava.ActivityDetail, error) {
	if b.store != nil {
		var cached strava.ActivityDetail
		if b.store.Get(cache.KindDetail, activityID, &cached) {
			return &cached, nil
		}
	}

	detail, err := b.client.GetActivityDetail(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity detail: %w", err)
	}

	if b.store != nil {
		if err := b.store.Set(cache.KindDetail, activityID, detail); err != nil {
			log.Printf("[Backend] Failed to cache activity detail %d: %v", activityID, err)
		}
	}
	return detail, nil
}

func (b *Backend) activityStreams(ctx context.Context, activityID int64) (map[string]strava.ActivityStream, error) {
	if b.store != nil {
		var cached map[string]strava.ActivityStream
		if b.store.Get(cache.KindStreams, activityID, &cached) {
			return cached, nil
		}
	}

	streams, err := b.client.GetActivityStreams(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity streams: %w", err)
	}

	if b.store != nil {
		if err := b.store.Set(cache.KindStreams, activityID, streams); err != nil {
			log.Printf("[Backend] Failed to cache activity streams %d: %v", activityID, err)
		}
	}
	return streams, nil
}

func streamData(streams map[string]strava.ActivityStream, key string) []interface{} {
	if s, ok := streams[key]; ok {
		if data, ok := s.Data.([]interface{}); ok {
			return data
		}
	}
	return nil
}

// correctToActivityZone reinterprets a camera timestamp in the
// activity's timezone. Cameras commonly stamp local wall-clock time
// tagged as UTC; Strava timezones look like
// "(GMT-03:00) America/Sao_Paulo" with the IANA name last.
func correctToActivityZone(t time.Time, stravaTimezone string) time.Time {
	parts := strings.Split(stravaTimezone, " ")
	location, err := time.LoadLocation(parts[len(parts)-1])
	if err != nil {
		log.Printf("[Backend] Unknown timezone %q, keeping UTC: %v", stravaTimezone, err)
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), location)
}
