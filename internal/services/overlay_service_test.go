package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlay-studio/internal/strava"
	"overlay-studio/internal/video"
)

func TestValidateVideoFile(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"clip.mp4", "clip.MOV", "clip.avi", "clip.mkv"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		assert.NoError(t, ValidateVideoFile(path), name)
	}

	gif := filepath.Join(dir, "clip.gif")
	require.NoError(t, os.WriteFile(gif, []byte("x"), 0644))
	err := ValidateVideoFile(gif)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported video format")

	err = ValidateVideoFile(filepath.Join(dir, "missing.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestDetermineVideoStartTimeManualWins(t *testing.T) {
	meta := &video.Metadata{
		CreationTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	detail := &strava.ActivityDetail{Activity: strava.Activity{Timezone: "(GMT-03:00) America/Sao_Paulo"}}

	got, err := determineVideoStartTime(meta, detail, "2025-06-01T12:34:56Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC), got.UTC())
}

func TestDetermineVideoStartTimeRejectsBadManualTime(t *testing.T) {
	meta := &video.Metadata{CreationTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	detail := &strava.ActivityDetail{Activity: strava.Activity{Timezone: "(GMT+00:00) Europe/London"}}

	_, err := determineVideoStartTime(meta, detail, "yesterday at noon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse manual start time")
}

func TestDetermineVideoStartTimeReinterpretsInActivityZone(t *testing.T) {
	// Cameras stamp local wall-clock time tagged as UTC; the wall clock
	// reading carries over, the zone changes.
	meta := &video.Metadata{
		CreationTime: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
	detail := &strava.ActivityDetail{Activity: strava.Activity{Timezone: "(GMT-03:00) America/Sao_Paulo"}}

	got, err := determineVideoStartTime(meta, detail, "")
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 30, 0, 0, loc), got)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), got.UTC())
}

func TestDetermineVideoStartTimeUnknownZoneFallsBackToUTC(t *testing.T) {
	meta := &video.Metadata{
		CreationTime: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
	detail := &strava.ActivityDetail{Activity: strava.Activity{Timezone: "(GMT+99:00) Not/AZone"}}

	got, err := determineVideoStartTime(meta, detail, "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), got)
}

func TestDetermineVideoStartTimeRequiresTimestampOrSyncPoint(t *testing.T) {
	meta := &video.Metadata{}
	detail := &strava.ActivityDetail{Activity: strava.Activity{Timezone: "(GMT+00:00) Europe/London"}}

	_, err := determineVideoStartTime(meta, detail, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set a sync point")
}

func TestOutputPathFor(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	path, err := outputPathFor(12345)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, outputDirName, "activity_12345_overlay.mp4"), path)

	// The output directory is created as a side effect.
	info, err := os.Stat(filepath.Join(home, outputDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStreamDataExtraction(t *testing.T) {
	streams := map[string]strava.ActivityStream{
		"time": {Data: []interface{}{0.0, 1.0, 2.0}},
		"bad":  {Data: "not a slice"},
	}

	assert.Len(t, streamData(streams, "time"), 3)
	assert.Nil(t, streamData(streams, "bad"))
	assert.Nil(t, streamData(streams, "missing"))
}
