// Package services hosts the overlay processing pipeline that turns a
// selected video plus a Strava activity into an encoded clip with the
// telemetry burned in.
package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"overlay-studio/internal/gps"
	"overlay-studio/internal/overlay"
	"overlay-studio/internal/overlayjob"
	"overlay-studio/internal/strava"
	"overlay-studio/internal/trajectory"
	"overlay-studio/internal/video"
)

// outputDirName is the folder under the user's home directory where
// finished videos land.
const outputDirName = "Telemetry Overlay Studio"

var supportedVideoExts = []string{".mp4", ".mov", ".avi", ".mkv"}

// OverlayService runs the full overlay pipeline: probe, activity
// lookup, sync, GPS extraction, frame rendering, encode. It implements
// the job coordinator's Runner contract.
type OverlayService struct {
	client *strava.Client
}

// NewOverlayService creates a pipeline bound to a Strava client.
func NewOverlayService(client *strava.Client) *OverlayService {
	return &OverlayService{client: client}
}

// Run executes the pipeline for one request. Progress events carry the
// stage name, a 0..100 percent and a human message. The terminal
// callback fires once with the outcome of the encode step; the return
// values settle the call itself.
func (s *OverlayService) Run(ctx context.Context, req overlayjob.Request, progress func(overlayjob.Progress), terminal func(overlayjob.Terminal)) (string, error) {
	report := func(stage string, percent float64, message string) {
		log.Printf("[Pipeline] [%s] %.1f%% - %s", stage, percent, message)
		if progress != nil {
			progress(overlayjob.Progress{Stage: stage, Progress: percent, Message: message})
		}
	}

	report(overlayjob.StageInit, 0, "Starting processing...")
	if err := ValidateVideoFile(req.VideoPath); err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report(overlayjob.StageMetadata, 5, "Reading video metadata...")
	videoMeta, err := video.Probe(req.VideoPath)
	if err != nil {
		return "", fmt.Errorf("failed to get video metadata: %w", err)
	}
	report(overlayjob.StageMetadata, 10, fmt.Sprintf("Video: %.1fs, %dx%d",
		videoMeta.Duration.Seconds(), videoMeta.Width, videoMeta.Height))

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report(overlayjob.StageActivity, 15, "Loading Strava activity...")
	detail, err := s.client.GetActivityDetail(ctx, req.ActivityID)
	if err != nil {
		return "", fmt.Errorf("failed to get activity detail: %w", err)
	}
	report(overlayjob.StageActivity, 20, fmt.Sprintf("Activity: %s", detail.Name))

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report(overlayjob.StageSync, 25, "Synchronizing video and GPS time...")
	videoStart, err := determineVideoStartTime(videoMeta, detail, req.SyncTime)
	if err != nil {
		return "", fmt.Errorf("failed to determine video start time: %w", err)
	}
	report(overlayjob.StageSync, 30, "Synchronization complete")

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report(overlayjob.StageGPS, 35, "Loading GPS data...")
	points, err := s.loadPointsForRange(ctx, req.ActivityID, detail.StartDate, videoStart, videoStart.Add(videoMeta.Duration))
	if err != nil {
		return "", err
	}
	report(overlayjob.StageGPS, 40, fmt.Sprintf("%d GPS points loaded", len(points)))

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report(overlayjob.StageOverlay, 45, "Rendering overlays...")
	gen := overlay.NewGenerator(req.OverlayPosition)
	defer gen.Cleanup()

	gen.SetProgressFunc(func(current, total int) {
		if ctx.Err() != nil {
			return
		}
		percent := 45 + (15 * float64(current) / float64(total))
		report(overlayjob.StageOverlay, percent, fmt.Sprintf("Rendering overlay %d/%d", current, total))
	})

	overlayImages, err := gen.GenerateSequence(points)
	if err != nil {
		return "", fmt.Errorf("failed to generate overlays: %w", err)
	}
	report(overlayjob.StageOverlay, 60, fmt.Sprintf("%d overlays rendered", len(overlayImages)))

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report(overlayjob.StageOutput, 65, "Preparing output file...")
	outputPath, err := outputPathFor(req.ActivityID)
	if err != nil {
		return "", fmt.Errorf("failed to generate output path: %w", err)
	}
	report(overlayjob.StageOutput, 70, "Output path ready")

	report(overlayjob.StageEncoding, 70, "Starting video encode...")
	processor := video.NewProcessor()
	processor.SetProgressFunc(func(percent float64) {
		report(overlayjob.StageEncoding, 70+(25*percent/100), fmt.Sprintf("Encoding: %.1f%%", percent))
	})

	if err := processor.ApplyOverlays(ctx, req.VideoPath, overlayImages, outputPath, req.OverlayPosition); err != nil {
		if terminal != nil {
			terminal(overlayjob.Terminal{Success: false, Error: err.Error()})
		}
		return "", fmt.Errorf("failed to apply overlays: %w", err)
	}

	if terminal != nil {
		terminal(overlayjob.Terminal{Success: true, OutputPath: outputPath})
	}
	report(overlayjob.StageComplete, 100, "Processing complete")
	log.Printf("[Pipeline] Video processed successfully: %s", outputPath)
	return outputPath, nil
}

// loadPointsForRange fetches the activity streams and clips the
// processed track to the video's time window.
func (s *OverlayService) loadPointsForRange(ctx context.Context, activityID int64, activityStart, start, end time.Time) ([]trajectory.Point, error) {
	streams, err := s.client.GetActivityStreams(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity streams: %w", err)
	}

	proc := gps.NewProcessor()
	if err := proc.ProcessStreams(
		streamData(streams, "time"),
		streamData(streams, "latlng"),
		streamData(streams, "velocity_smooth"),
		streamData(streams, "altitude"),
		activityStart,
	); err != nil {
		return nil, fmt.Errorf("failed to process GPS streams: %w", err)
	}

	points := proc.PointsForTimeRange(start, end)
	if len(points) == 0 {
		return nil, fmt.Errorf("no GPS data found for video time range")
	}
	return points, nil
}

func streamData(streams map[string]strava.ActivityStream, key string) []interface{} {
	if s, ok := streams[key]; ok {
		if data, ok := s.Data.([]interface{}); ok {
			return data
		}
	}
	return nil
}

// determineVideoStartTime resolves the point in the activity timeline
// where the video begins. A manual sync point from the map wins; with
// none set, the camera's creation timestamp is reinterpreted in the
// activity's timezone, since cameras commonly stamp local wall-clock
// time tagged as UTC.
func determineVideoStartTime(videoMeta *video.Metadata, detail *strava.ActivityDetail, manualSyncTime string) (time.Time, error) {
	if manualSyncTime != "" {
		parsed, err := time.Parse(time.RFC3339, manualSyncTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse manual start time: %w", err)
		}
		log.Printf("[Pipeline] Using manual start time: %s", parsed.Format("15:04:05"))
		return parsed, nil
	}

	if videoMeta.CreationTime.IsZero() {
		return time.Time{}, fmt.Errorf("video has no creation timestamp; set a sync point on the map")
	}

	// Strava timezones look like "(GMT-03:00) America/Sao_Paulo"; the
	// IANA name is the last space-separated token.
	tzParts := strings.Split(detail.Timezone, " ")
	location, err := time.LoadLocation(tzParts[len(tzParts)-1])
	if err != nil {
		log.Printf("[Pipeline] Unknown timezone %q, falling back to UTC: %v", detail.Timezone, err)
		location = time.UTC
	}

	t := videoMeta.CreationTime
	corrected := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), location)
	log.Printf("[Pipeline] Using automatic start time: %s", corrected.Format("15:04:05"))
	return corrected, nil
}

// outputPathFor builds the destination path for a finished video,
// creating the output directory when needed.
func outputPathFor(activityID int64) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	outputDir := filepath.Join(homeDir, outputDirName)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return filepath.Join(outputDir, fmt.Sprintf("activity_%d_overlay.mp4", activityID)), nil
}

// ValidateVideoFile checks the file exists and carries a supported
// container extension.
func ValidateVideoFile(videoPath string) error {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return fmt.Errorf("video file does not exist: %s", videoPath)
	}
	ext := strings.ToLower(filepath.Ext(videoPath))
	for _, supported := range supportedVideoExts {
		if ext == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported video format %s, supported formats: %v", ext, supportedVideoExts)
}
