// Package overlayjob drives one overlay-processing job at a time
// through submission, progress reporting, cooperative cancellation and
// teardown. The pipeline reports completion twice, once through its
// terminal event and once through the call's own return value; the
// coordinator treats whichever arrives first as authoritative and
// detaches its listeners exactly once.
package overlayjob

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// terminal reports whether the status is one of the end states.
func (s Status) terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrJobActive is returned by Submit while a job is running.
	ErrJobActive = errors.New("an overlay job is already active")

	// ErrNotRunning is returned by Cancel when there is nothing to
	// cancel.
	ErrNotRunning = errors.New("no overlay job is running")
)

// Request describes one overlay job submission. SyncTime is RFC3339 or
// the empty "undetermined" sentinel, which the backend resolves to the
// track start.
type Request struct {
	ActivityID      int64  `json:"activityId"`
	VideoPath       string `json:"videoPath"`
	SyncTime        string `json:"syncTime"`
	OverlayPosition string `json:"overlayPosition"`
}

// Progress is one push-style progress event from the pipeline.
type Progress struct {
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"` // 0..100
	Message  string  `json:"message"`
}

// Terminal is the pipeline's completion event.
type Terminal struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Job is the full state of the current (or last) job as shown to the
// frontend.
type Job struct {
	Request
	Status          Status  `json:"status"`
	ProgressPercent float64 `json:"progressPercent"`
	Stage           string  `json:"stage"`
	StageLabel      string  `json:"stageLabel"`
	LastMessage     string  `json:"lastMessage"`
	OutputPath      string  `json:"outputPath,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Runner executes the overlay pipeline. Run blocks until the pipeline
// finishes; it may report the terminal outcome through the terminal
// callback, through its return values, or both. Cancellation is
// cooperative through the context; the client sets no timeout of its
// own since encodes can run long.
type Runner interface {
	Run(ctx context.Context, req Request, progress func(Progress), terminal func(Terminal)) (string, error)
}

// cooldownPeriod is how long a finished job stays visible before the
// coordinator reports idle again. Cosmetic only: Submit accepts a new
// job immediately after the terminal signal.
const cooldownPeriod = 5 * time.Second

// Coordinator owns the lifecycle of at most one live overlay job.
type Coordinator struct {
	mu       sync.Mutex
	runner   Runner
	job      Job
	gen      uint64 // increments per submission; stale signals are dropped
	attached bool   // listeners for the current generation still attached
	cancel   context.CancelFunc
	cooldown *time.Timer

	onProgress func(Job)
	onComplete func(Job)
	onReset    func()
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(runner Runner) *Coordinator {
	return &Coordinator{
		runner: runner,
		job:    Job{Status: StatusIdle},
	}
}

// SetCallbacks registers the event bridge to the UI layer. onProgress
// fires per progress event, onComplete once per job on its terminal
// state, onReset after the cosmetic cool-down.
func (c *Coordinator) SetCallbacks(onProgress, onComplete func(Job), onReset func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = onProgress
	c.onComplete = onComplete
	c.onReset = onReset
}

// Submit starts a new overlay job. It is rejected while a job is still
// running or cancelling; a job sitting in its terminal cool-down is
// replaced immediately.
func (c *Coordinator) Submit(req Request) error {
	c.mu.Lock()
	if c.job.Status == StatusRunning || c.job.Status == StatusCancelling {
		c.mu.Unlock()
		return ErrJobActive
	}
	if c.cooldown != nil {
		c.cooldown.Stop()
		c.cooldown = nil
	}

	c.gen++
	gen := c.gen
	c.attached = true
	c.job = Job{
		Request:    req,
		Status:     StatusRunning,
		Stage:      StageInit,
		StageLabel: StageLabel(StageInit),
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	log.Printf("[OverlayJob] Submitted job for activity %d (video %s)", req.ActivityID, req.VideoPath)

	go func() {
		outputPath, err := c.runner.Run(ctx,
			req,
			func(p Progress) { c.applyProgress(gen, p) },
			func(t Terminal) { c.finish(gen, t) },
		)
		// The call's own settlement is the second, independent
		// terminal signal. finish ignores it if the event stream
		// already completed this generation.
		if err != nil {
			c.finish(gen, Terminal{Success: false, Error: err.Error()})
		} else {
			c.finish(gen, Terminal{Success: true, OutputPath: outputPath})
		}
	}()
	return nil
}

// Cancel requests cooperative cancellation of the running job. The job
// stays in cancelling until a terminal signal actually arrives, and may
// still finish as succeeded or failed if the pipeline could not stop in
// time.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Status != StatusRunning {
		return ErrNotRunning
	}
	c.job.Status = StatusCancelling
	if c.cancel != nil {
		c.cancel()
	}
	log.Printf("[OverlayJob] Cancellation requested for activity %d", c.job.ActivityID)
	return nil
}

// Current returns a snapshot of the job state.
func (c *Coordinator) Current() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// applyProgress applies one progress event in delivery order, keeping
// only the latest stage/percent/message. Events for a superseded or
// finished generation are dropped.
func (c *Coordinator) applyProgress(gen uint64, p Progress) {
	c.mu.Lock()
	if gen != c.gen || !c.attached || c.job.Status.terminal() {
		c.mu.Unlock()
		return
	}
	if p.Progress < 0 {
		p.Progress = 0
	}
	if p.Progress > 100 {
		p.Progress = 100
	}
	c.job.ProgressPercent = p.Progress
	c.job.Stage = p.Stage
	c.job.StageLabel = StageLabel(p.Stage)
	c.job.LastMessage = p.Message
	job := c.job
	notify := c.onProgress
	c.mu.Unlock()

	if notify != nil {
		notify(job)
	}
}

// finish applies a terminal signal. The first signal for a generation
// wins; the losing one is ignored so completion handlers never re-fire
// and listeners detach exactly once.
func (c *Coordinator) finish(gen uint64, t Terminal) {
	c.mu.Lock()
	if gen != c.gen || !c.attached {
		c.mu.Unlock()
		return
	}
	c.attached = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	cancelRequested := c.job.Status == StatusCancelling
	switch {
	case t.Success:
		c.job.Status = StatusSucceeded
		c.job.OutputPath = t.OutputPath
		c.job.ProgressPercent = 100
		c.job.Stage = StageComplete
		c.job.StageLabel = StageLabel(StageComplete)
	case cancelRequested:
		// Cancellation unwinds through the failure path but is not a
		// failure; keep it distinguishable for the UI.
		c.job.Status = StatusCancelled
		c.job.Error = t.Error
	default:
		c.job.Status = StatusFailed
		c.job.Error = t.Error
	}
	job := c.job
	notify := c.onComplete

	c.cooldown = time.AfterFunc(cooldownPeriod, func() { c.reset(gen) })
	c.mu.Unlock()

	log.Printf("[OverlayJob] Job finished: %s (output=%q error=%q)", job.Status, job.OutputPath, job.Error)
	if notify != nil {
		notify(job)
	}
}

// reset returns the coordinator to idle after the cool-down, unless a
// new submission already took over.
func (c *Coordinator) reset(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.job = Job{Status: StatusIdle}
	c.cooldown = nil
	notify := c.onReset
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}
