package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sync"

	"github.com/posthog/posthog-go"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"golang.org/x/oauth2"

	"overlay-studio/internal/backend"
	"overlay-studio/internal/cache"
	"overlay-studio/internal/catalogue"
	"overlay-studio/internal/config"
	"overlay-studio/internal/overlayjob"
	"overlay-studio/internal/ratelimit"
	"overlay-studio/internal/services"
	"overlay-studio/internal/strava"
	"overlay-studio/internal/syncpoint"
	"overlay-studio/internal/trajectory"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// App struct
type App struct {
	ctx      context.Context
	env      *config.Env
	store    *cache.Store
	phClient posthog.Client
	limiter  *ratelimit.Handler
	devMode  bool // Enable verbose logging in dev mode only

	pager       *catalogue.Pager
	trajectory  *trajectory.Store
	syncCtl     *syncpoint.Controller
	coordinator *overlayjob.Coordinator

	// mu guards the fields below. Bound methods run on separate
	// goroutines, so every read and write goes through it.
	mu                 sync.Mutex
	settings           *config.UserSettings
	selectedActivityID int64
	selectedVideoPath  string
}

func (a *App) setSelectedActivity(id int64) {
	a.mu.Lock()
	a.selectedActivityID = id
	a.mu.Unlock()
}

func (a *App) setSelectedVideo(path string) {
	a.mu.Lock()
	a.selectedVideoPath = path
	a.mu.Unlock()
}

func (a *App) selection() (activityID int64, videoPath string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedActivityID, a.selectedVideoPath
}

func (a *App) currentSettings() *config.UserSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *App) updateSettings(s *config.UserSettings) {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
}

// NewApp creates a new App application struct
func NewApp() *App {
	env, err := config.LoadEnv()
	if err != nil {
		log.Printf("[App] Environment incomplete: %v", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Printf("[App] Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	log.Printf("[App] Settings loaded from: %s", config.GetSettingsPath())

	cacheDir := cache.GetCacheDir()
	store, err := cache.NewStore(cacheDir, settings.CacheMaxSizeMB, settings.CacheTTLDays)
	if err != nil {
		log.Printf("[App] Failed to initialize cache: %v", err)
		store = nil // Continue without cache
	} else {
		log.Printf("[App] Activity cache initialized at %s (max %d MB)", cacheDir, settings.CacheMaxSizeMB)
	}

	var phClient posthog.Client
	if PostHogKey != "" && settings.TelemetryAnalytics {
		client, err := posthog.NewWithConfig(PostHogKey, posthog.Config{
			Endpoint: PostHogHost,
		})
		if err != nil {
			log.Printf("[App] Failed to initialize PostHog: %v", err)
		} else {
			phClient = client
		}
	}

	client := strava.NewClient(loadStravaToken())
	limiter := ratelimit.NewHandler()
	client.SetRateLimitHandler(limiter)
	adapter := backend.New(client, store)

	return &App{
		env:         env,
		settings:    settings,
		store:       store,
		phClient:    phClient,
		limiter:     limiter,
		pager:       catalogue.NewPager(adapter),
		trajectory:  trajectory.NewStore(adapter),
		syncCtl:     syncpoint.NewController(adapter),
		coordinator: overlayjob.NewCoordinator(services.NewOverlayService(client)),
	}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	a.trajectory.SetReplaceHook(func() {
		wailsRuntime.EventsEmit(ctx, "trajectory-cleared", nil)
	})

	a.limiter.SetOnRateLimit(func(event ratelimit.Event) {
		wailsRuntime.EventsEmit(ctx, "rate-limit", event)
	})
	a.limiter.SetOnRecovered(func() {
		wailsRuntime.EventsEmit(ctx, "rate-limit-cleared", nil)
	})

	a.coordinator.SetCallbacks(
		func(job overlayjob.Job) {
			wailsRuntime.EventsEmit(ctx, "job-progress", job)
		},
		func(job overlayjob.Job) {
			wailsRuntime.EventsEmit(ctx, "job-complete", job)
			a.TrackEvent("job_finished", map[string]interface{}{
				"status":   string(job.Status),
				"activity": job.ActivityID,
			})
			if job.Status == overlayjob.StatusSucceeded && a.currentSettings().AutoOpenOutputDir {
				a.OpenOutputFolder()
			}
		},
		func() {
			wailsRuntime.EventsEmit(ctx, "job-reset", nil)
		},
	)

	props := map[string]interface{}{
		"version": AppVersion,
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
	}
	if a.env != nil {
		props["environment"] = a.env.Environment
	}
	a.TrackEvent("app_started", props)
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.devMode {
		log.Printf("[App] Event %s: %v", event, props)
	}
	if a.phClient != nil {
		a.phClient.Enqueue(posthog.Capture{
			DistinctId: "backend_user",
			Event:      event,
			Properties: props,
		})
	}
}

// Shutdown cleans up resources
func (a *App) Shutdown(ctx context.Context) {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.phClient != nil {
		a.phClient.Close()
	}
}

// GetRateLimitState returns the active Strava rate limit event, nil
// when requests are flowing.
func (a *App) GetRateLimitState() *ratelimit.Event {
	return a.limiter.CurrentState()
}

// GetAppVersion returns the current application version
func (a *App) GetAppVersion() string {
	return AppVersion
}

// === ACTIVITY CATALOGUE ===

// GetActivitiesPage loads a specific page of the activity catalogue.
func (a *App) GetActivitiesPage(page int) (catalogue.State, error) {
	if err := a.pager.LoadPage(a.ctx, page); err != nil {
		return a.pager.State(), err
	}
	return a.pager.State(), nil
}

// LoadMoreActivities appends the next page when one is available.
func (a *App) LoadMoreActivities() (catalogue.State, error) {
	if err := a.pager.LoadNext(a.ctx); err != nil {
		return a.pager.State(), err
	}
	return a.pager.State(), nil
}

// RefreshActivities reloads the catalogue from the first page.
func (a *App) RefreshActivities() (catalogue.State, error) {
	if err := a.pager.Refresh(a.ctx); err != nil {
		return a.pager.State(), err
	}
	return a.pager.State(), nil
}

// GetActivities returns the loaded catalogue, optionally restricted to
// activities that carry GPS data.
func (a *App) GetActivities(gpsOnly bool) []catalogue.Summary {
	return a.pager.Filtered(gpsOnly)
}

// GetActivityCounts returns total and GPS-carrying activity counts for
// the filter toggle label.
func (a *App) GetActivityCounts() map[string]int {
	return map[string]int{
		"total": a.pager.TotalCount(),
		"gps":   a.pager.GPSCount(),
	}
}

// === ACTIVITY SELECTION & TRAJECTORY ===

// SelectActivity makes an activity current: the previous trajectory and
// sync point are dropped immediately, then the detailed track loads in
// the background with a coarse polyline fallback.
func (a *App) SelectActivity(activityID int64) error {
	if _, ok := a.pager.Get(activityID); !ok {
		return fmt.Errorf("unknown activity: %d", activityID)
	}

	a.setSelectedActivity(activityID)
	a.syncCtl.Reset()
	wailsRuntime.EventsEmit(a.ctx, "sync-point-changed", a.syncCtl.Current())

	// The old track is dropped before this returns; only the fetch runs
	// in the background. A map click landing between activity switch and
	// track arrival reports no trajectory instead of resolving against
	// the previous activity.
	a.trajectory.LoadForActivityAsync(a.ctx, activityID, func(err error) {
		if err != nil {
			log.Printf("[App] Trajectory load failed for %d: %v", activityID, err)
			wailsRuntime.EventsEmit(a.ctx, "trajectory-error", err.Error())
			return
		}
		wailsRuntime.EventsEmit(a.ctx, "trajectory-loaded", map[string]interface{}{
			"activityId": activityID,
			"detailed":   a.trajectory.IsDetailed(),
			"points":     a.trajectory.Snapshot(),
		})
	})

	return nil
}

// GetTrajectory returns the held track.
func (a *App) GetTrajectory() trajectory.Track {
	return a.trajectory.Snapshot()
}

// SpeedColorForVelocity exposes the speed banding to the map renderer.
func (a *App) SpeedColorForVelocity(velocityMS float64) string {
	return trajectory.SpeedColor(velocityMS)
}

// GetSpeedBands returns the banding table for the map legend.
func (a *App) GetSpeedBands() []trajectory.SpeedBand {
	return trajectory.SpeedBands
}

// === SYNC POINT ===

// TrajectoryClick resolves a map click to the nearest track point and
// sets it as the manual sync point.
func (a *App) TrajectoryClick(lat, lng float64) (syncpoint.SyncPoint, error) {
	result, err := a.trajectory.NearestPoint(a.ctx, lat, lng)
	if err != nil {
		return a.syncCtl.Current(), fmt.Errorf("failed to resolve click: %w", err)
	}

	sp := a.syncCtl.OnTrajectoryClick(result.Point)
	wailsRuntime.EventsEmit(a.ctx, "sync-point-changed", sp)
	return sp, nil
}

// GetSyncPoint returns the current sync point.
func (a *App) GetSyncPoint() syncpoint.SyncPoint {
	return a.syncCtl.Current()
}

// ClearSyncPoint drops the sync point back to none.
func (a *App) ClearSyncPoint() syncpoint.SyncPoint {
	a.syncCtl.Reset()
	sp := a.syncCtl.Current()
	wailsRuntime.EventsEmit(a.ctx, "sync-point-changed", sp)
	return sp
}

// === VIDEO SELECTION ===

// SelectVideoFile opens the file picker and attempts automatic sync
// against the selected activity.
func (a *App) SelectVideoFile() (string, error) {
	path, err := wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title: "Select Video",
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "Videos (*.mp4;*.mov;*.avi;*.mkv)", Pattern: "*.mp4;*.mov;*.avi;*.mkv"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to open file dialog: %w", err)
	}
	if path == "" {
		return "", nil // user cancelled
	}

	if err := services.ValidateVideoFile(path); err != nil {
		return "", err
	}
	a.setSelectedVideo(path)

	if activityID, _ := a.selection(); activityID != 0 {
		sp, err := a.syncCtl.OnVideoSelected(a.ctx, activityID, path)
		if err != nil {
			// Auto-sync trouble never blocks video selection.
			log.Printf("[App] Auto-sync failed: %v", err)
		}
		wailsRuntime.EventsEmit(a.ctx, "sync-point-changed", sp)
	}

	return path, nil
}

// === OVERLAY JOB ===

// ProcessVideoOverlay submits the overlay job for the current activity,
// video and sync point.
func (a *App) ProcessVideoOverlay(overlayPosition string) error {
	activityID, videoPath := a.selection()
	if activityID == 0 {
		return fmt.Errorf("no activity selected")
	}
	if videoPath == "" {
		return fmt.Errorf("no video selected")
	}
	if overlayPosition == "" {
		overlayPosition = a.currentSettings().DefaultOverlayPosition
	}
	if err := config.ValidateOverlayPosition(overlayPosition); err != nil {
		return err
	}

	err := a.coordinator.Submit(overlayjob.Request{
		ActivityID:      activityID,
		VideoPath:       videoPath,
		SyncTime:        a.syncCtl.ResolvedSyncTime(),
		OverlayPosition: overlayPosition,
	})
	if err != nil {
		return err
	}

	a.TrackEvent("job_submitted", map[string]interface{}{
		"activity": activityID,
		"position": overlayPosition,
		"sync":     string(a.syncCtl.Current().Source),
	})
	return nil
}

// CancelProcessing requests cancellation of the running job.
func (a *App) CancelProcessing() error {
	return a.coordinator.Cancel()
}

// GetJobStatus returns the current job snapshot.
func (a *App) GetJobStatus() overlayjob.Job {
	return a.coordinator.Current()
}

// === OUTPUT ===

// OpenOutputFolder opens the output directory in the system file
// manager.
func (a *App) OpenOutputFolder() error {
	outputPath := a.currentSettings().OutputPath
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	wailsRuntime.BrowserOpenURL(a.ctx, "file://"+outputPath)
	return nil
}

// loadStravaToken reads the persisted OAuth token. The interactive
// authorization flow lives outside the app; STRAVA_ACCESS_TOKEN can
// stand in during development.
func loadStravaToken() *oauth2.Token {
	homeDir, _ := os.UserHomeDir()
	tokenPath := filepath.Join(homeDir, ".overlay-studio", "token.json")

	if data, err := os.ReadFile(tokenPath); err == nil {
		var token oauth2.Token
		if err := json.Unmarshal(data, &token); err == nil {
			return &token
		}
		log.Printf("[App] Failed to parse token file %s", tokenPath)
	}

	if access := os.Getenv("STRAVA_ACCESS_TOKEN"); access != "" {
		return &oauth2.Token{AccessToken: access}
	}

	log.Printf("[App] No Strava token found; API calls will fail until one is provided")
	return &oauth2.Token{}
}
