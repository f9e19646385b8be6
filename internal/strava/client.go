// Package strava is a thin client for the Strava v3 REST API, scoped
// to the endpoints the overlay workflow needs: paged activity listing,
// activity detail and the raw GPS streams.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twpayne/go-polyline"
	"golang.org/x/oauth2"

	"overlay-studio/internal/ratelimit"
)

const defaultBaseURL = "https://www.strava.com/api/v3"

// Client calls the Strava API with an OAuth2 token transport. The
// interactive authorization flow happens outside this package; the
// client only consumes an already-obtained token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimit.Handler
}

// ErrRateLimited is returned while a Strava quota window is exhausted.
var ErrRateLimited = errors.New("strava API rate limit reached")

// Activity is one entry from the athlete activities listing.
type Activity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	StartDate   time.Time `json:"start_date"`
	Distance    float64   `json:"distance"`
	MovingTime  int       `json:"moving_time"`
	MaxSpeed    float64   `json:"max_speed"`
	Timezone    string    `json:"timezone"`
	StartLatLng []float64 `json:"start_latlng"`
	EndLatLng   []float64 `json:"end_latlng"`
	Map         Map       `json:"map"`
}

// HasGPS reports whether the activity carries a GPS track. The summary
// polyline is the reliable signal for that.
func (a Activity) HasGPS() bool {
	return a.Map.SummaryPolyline != ""
}

// Map holds the encoded route polylines of an activity.
type Map struct {
	ID              string `json:"id"`
	Polyline        string `json:"polyline"`
	SummaryPolyline string `json:"summary_polyline"`
}

// ActivityDetail is the Activity superset returned by the single
// activity endpoint. The embedded Activity is a value so promoted
// fields stay readable even when a response omits the summary fields.
type ActivityDetail struct {
	Activity
	Calories      float64 `json:"calories"`
	ElevationGain float64 `json:"total_elevation_gain"`
}

// ActivityStream is one raw data stream (time, latlng, velocity_smooth
// or altitude).
type ActivityStream struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewClient creates a client using the given token for authentication.
func NewClient(token *oauth2.Token) *Client {
	config := &oauth2.Config{}
	return &Client{
		httpClient: config.Client(context.Background(), token),
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub
// server.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// SetRateLimitHandler attaches quota tracking. Calls are refused with
// ErrRateLimited while a window is exhausted.
func (c *Client) SetRateLimitHandler(h *ratelimit.Handler) {
	c.limiter = h
}

// GetActivitiesPage fetches one page of the athlete's activities.
// Strava does not report a total, so a full page implies more may
// follow.
func (c *Client) GetActivitiesPage(ctx context.Context, page, perPage int) ([]Activity, bool, error) {
	url := fmt.Sprintf("%s/athlete/activities?page=%d&per_page=%d", c.baseURL, page, perPage)

	var activities []Activity
	if err := c.getJSON(ctx, url, &activities); err != nil {
		return nil, false, fmt.Errorf("failed to fetch activities page %d: %w", page, err)
	}

	hasMore := len(activities) == perPage
	return activities, hasMore, nil
}

// GetActivityDetail fetches a single activity with performance fields.
func (c *Client) GetActivityDetail(ctx context.Context, activityID int64) (*ActivityDetail, error) {
	url := fmt.Sprintf("%s/activities/%d", c.baseURL, activityID)

	var detail ActivityDetail
	if err := c.getJSON(ctx, url, &detail); err != nil {
		return nil, fmt.Errorf("failed to fetch activity %d: %w", activityID, err)
	}
	return &detail, nil
}

// GetActivityStreams fetches the raw GPS streams of an activity, keyed
// by stream type.
func (c *Client) GetActivityStreams(ctx context.Context, activityID int64) (map[string]ActivityStream, error) {
	url := fmt.Sprintf("%s/activities/%d/streams?keys=time,latlng,velocity_smooth,altitude&key_by_type=true",
		c.baseURL, activityID)

	var streams map[string]ActivityStream
	if err := c.getJSON(ctx, url, &streams); err != nil {
		return nil, fmt.Errorf("failed to fetch streams for activity %d: %w", activityID, err)
	}
	return streams, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	if c.limiter != nil && c.limiter.IsLimited() {
		return ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if c.limiter != nil && c.limiter.CheckResponse(resp) {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DecodeSummaryPolyline decodes the activity's summary polyline into
// (lat, lng) pairs. Returns nil for activities without a route.
func DecodeSummaryPolyline(m Map) ([][2]float64, error) {
	if m.SummaryPolyline == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(m.SummaryPolyline))
	if err != nil {
		return nil, fmt.Errorf("failed to decode summary polyline: %w", err)
	}
	out := make([][2]float64, len(coords))
	for i, c := range coords {
		out[i] = [2]float64{c[0], c[1]}
	}
	return out, nil
}
