package syncpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlay-studio/internal/trajectory"
)

type fakeAutoSource struct {
	point *trajectory.Point
	err   error

	// onFetch runs mid-lookup, simulating user input landing while the
	// automatic guess is in flight.
	onFetch func()
}

func (f *fakeAutoSource) FetchAutoSyncPoint(ctx context.Context, activityID int64, videoPath string) (*trajectory.Point, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.point, f.err
}

var syncTime = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

func TestAutomaticSyncOnVideoSelection(t *testing.T) {
	src := &fakeAutoSource{point: &trajectory.Point{Time: syncTime, Lat: 1, Lng: 2}}
	c := NewController(src)

	sp, err := c.OnVideoSelected(context.Background(), 42, "/videos/ride.mp4")
	require.NoError(t, err)
	assert.Equal(t, SourceAutomatic, sp.Source)
	assert.Equal(t, "2025-06-01T10:30:00Z", sp.Time)
	assert.Equal(t, 1.0, sp.Lat)
	assert.Equal(t, sp.Time, c.ResolvedSyncTime())
}

func TestNoAutomaticMatchStaysUndetermined(t *testing.T) {
	c := NewController(&fakeAutoSource{point: nil})

	sp, err := c.OnVideoSelected(context.Background(), 42, "/videos/ride.mp4")
	require.NoError(t, err, "a missing guess is a defined outcome, not a failure")
	assert.Equal(t, SourceNone, sp.Source)
	assert.Equal(t, "", c.ResolvedSyncTime())
}

func TestFailedLookupMapsToUndetermined(t *testing.T) {
	c := NewController(&fakeAutoSource{err: errors.New("probe failed")})

	sp, err := c.OnVideoSelected(context.Background(), 42, "/videos/ride.mp4")
	require.Error(t, err)
	assert.Equal(t, SourceNone, sp.Source)
}

func TestManualClickWinsOverAutomatic(t *testing.T) {
	src := &fakeAutoSource{point: &trajectory.Point{Time: syncTime, Lat: 1, Lng: 2}}
	c := NewController(src)

	_, err := c.OnVideoSelected(context.Background(), 42, "/v.mp4")
	require.NoError(t, err)

	manual := c.OnTrajectoryClick(trajectory.Point{Time: syncTime.Add(time.Minute), Lat: 3, Lng: 4})
	assert.Equal(t, SourceManual, manual.Source)
	assert.Equal(t, "2025-06-01T10:31:00Z", manual.Time)

	// Manual stays authoritative.
	assert.Equal(t, SourceManual, c.Current().Source)
}

func TestAutomaticNeverOverridesManualMidFlight(t *testing.T) {
	src := &fakeAutoSource{point: &trajectory.Point{Time: syncTime, Lat: 1, Lng: 2}}
	c := NewController(src)
	src.onFetch = func() {
		c.OnTrajectoryClick(trajectory.Point{Time: syncTime.Add(time.Hour), Lat: 9, Lng: 9})
	}

	sp, err := c.OnVideoSelected(context.Background(), 42, "/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, SourceManual, sp.Source)
	assert.Equal(t, 9.0, sp.Lat)
}

func TestNewVideoSelectionResetsManualPoint(t *testing.T) {
	c := NewController(&fakeAutoSource{point: nil})
	c.OnTrajectoryClick(trajectory.Point{Time: syncTime, Lat: 1, Lng: 2})
	require.Equal(t, SourceManual, c.Current().Source)

	sp, err := c.OnVideoSelected(context.Background(), 42, "/other.mp4")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, sp.Source)
}

func TestResetClearsState(t *testing.T) {
	c := NewController(&fakeAutoSource{})
	c.OnTrajectoryClick(trajectory.Point{Time: syncTime, Lat: 1, Lng: 2})

	c.Reset()
	assert.Equal(t, SyncPoint{Source: SourceNone}, c.Current())
	assert.Equal(t, "", c.ResolvedSyncTime())
}

func TestClickOnCoarsePointKeepsEmptyTime(t *testing.T) {
	c := NewController(&fakeAutoSource{})

	sp := c.OnTrajectoryClick(trajectory.Point{Lat: 1, Lng: 2})
	assert.Equal(t, SourceManual, sp.Source)
	assert.Equal(t, "", sp.Time, "coarse samples carry no timestamp")
}
