// Package ratelimit tracks Strava API quota state. Strava enforces a
// short 15-minute window and a daily window; the short windows reset
// on quarter-hour boundaries, so retry scheduling targets the next
// boundary rather than a fixed backoff.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Usage is the quota consumption reported by Strava response headers.
type Usage struct {
	ShortTerm      int `json:"shortTerm"`      // requests in the current 15-minute window
	ShortTermLimit int `json:"shortTermLimit"` // window allowance
	Daily          int `json:"daily"`
	DailyLimit     int `json:"dailyLimit"`
}

// Event represents a rate limit occurrence
type Event struct {
	Timestamp   time.Time `json:"timestamp" ts_type:"string"`
	StatusCode  int       `json:"statusCode"`
	Usage       Usage     `json:"usage"`
	NextRetryAt time.Time `json:"nextRetryAt" ts_type:"string"`
	Message     string    `json:"message"`
}

// Handler manages rate limit detection and recovery scheduling
type Handler struct {
	mu          sync.RWMutex
	current     *Event
	usage       Usage
	onRateLimit func(event Event) // Callback for UI notification
	onRecovered func()            // Callback when the limit clears
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewHandler creates a new rate limit handler
func NewHandler() *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{ctx: ctx, cancel: cancel}
}

// SetOnRateLimit sets the callback for rate limit events
func (h *Handler) SetOnRateLimit(callback func(event Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRateLimit = callback
}

// SetOnRecovered sets the callback for recovery from a rate limit
func (h *Handler) SetOnRecovered(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecovered = callback
}

// IsLimited reports whether calls should currently be held back.
func (h *Handler) IsLimited() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current != nil && time.Now().Before(h.current.NextRetryAt)
}

// CheckResponse inspects a Strava response for quota state. Returns
// true when the call was rejected for rate limiting.
func (h *Handler) CheckResponse(resp *http.Response) bool {
	usage := parseUsageHeaders(resp)

	h.mu.Lock()
	if usage != (Usage{}) {
		h.usage = usage
	}
	h.mu.Unlock()

	if resp.StatusCode != http.StatusTooManyRequests {
		h.checkRecovery()
		return false
	}

	h.recordRateLimit(resp.StatusCode, usage)
	return true
}

// recordRateLimit records a rate limit event and schedules recovery
func (h *Handler) recordRateLimit(statusCode int, usage Usage) {
	h.mu.Lock()

	nextRetryAt := nextWindowStart(time.Now())
	// A blown daily quota does not recover at the quarter hour.
	if usage.DailyLimit > 0 && usage.Daily >= usage.DailyLimit {
		nextRetryAt = nextMidnightUTC(time.Now())
	}

	event := Event{
		Timestamp:   time.Now(),
		StatusCode:  statusCode,
		Usage:       usage,
		NextRetryAt: nextRetryAt,
		Message:     buildMessage(usage, nextRetryAt),
	}
	h.current = &event
	callback := h.onRateLimit
	h.mu.Unlock()

	log.Printf("[RateLimit] Strava rate limited (HTTP %d, short %d/%d, daily %d/%d). Next retry at %s",
		statusCode, usage.ShortTerm, usage.ShortTermLimit, usage.Daily, usage.DailyLimit,
		nextRetryAt.Format(time.RFC3339))

	if callback != nil {
		go callback(event)
	}

	go h.scheduleRecovery(event)
}

// scheduleRecovery clears the limit once its window has passed.
func (h *Handler) scheduleRecovery(event Event) {
	select {
	case <-time.After(time.Until(event.NextRetryAt)):
		h.mu.Lock()
		if h.current == nil || h.current.Timestamp != event.Timestamp {
			// Already cleared or replaced by a newer event
			h.mu.Unlock()
			return
		}
		h.current = nil
		callback := h.onRecovered
		h.mu.Unlock()

		log.Printf("[RateLimit] Strava rate limit window passed, resuming")
		if callback != nil {
			go callback()
		}

	case <-h.ctx.Done():
		return
	}
}

// checkRecovery clears the limit after a successful call.
func (h *Handler) checkRecovery() {
	h.mu.Lock()
	if h.current == nil {
		h.mu.Unlock()
		return
	}
	h.current = nil
	callback := h.onRecovered
	h.mu.Unlock()

	log.Printf("[RateLimit] Strava rate limit cleared")
	if callback != nil {
		go callback()
	}
}

// CurrentState returns the active rate limit event, or nil.
func (h *Handler) CurrentState() *Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil
	}
	eventCopy := *h.current
	return &eventCopy
}

// CurrentUsage returns the latest quota usage seen on any response.
func (h *Handler) CurrentUsage() Usage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.usage
}

// parseUsageHeaders reads the X-RateLimit-Limit and X-RateLimit-Usage
// headers, each formatted "short,daily".
func parseUsageHeaders(resp *http.Response) Usage {
	var u Usage
	u.ShortTermLimit, u.DailyLimit = splitPair(resp.Header.Get("X-RateLimit-Limit"))
	u.ShortTerm, u.Daily = splitPair(resp.Header.Get("X-RateLimit-Usage"))
	return u
}

func splitPair(value string) (int, int) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	a, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
	return a, b
}

// nextWindowStart returns the next quarter-hour boundary after t.
func nextWindowStart(t time.Time) time.Time {
	t = t.UTC()
	minutes := ((t.Minute() / 15) + 1) * 15
	return t.Truncate(time.Hour).Add(time.Duration(minutes) * time.Minute)
}

// nextMidnightUTC returns the start of the next UTC day.
func nextMidnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// buildMessage creates a user-friendly message
func buildMessage(usage Usage, nextRetryAt time.Time) string {
	minutes := int(time.Until(nextRetryAt).Minutes()) + 1
	if usage.DailyLimit > 0 && usage.Daily >= usage.DailyLimit {
		return fmt.Sprintf(
			"Strava daily request quota reached (%d/%d). Requests resume at midnight UTC.",
			usage.Daily, usage.DailyLimit)
	}
	return fmt.Sprintf(
		"Strava rate limit reached. Requests resume in about %d minute(s).", minutes)
}

// Close shuts down the rate limit handler
func (h *Handler) Close() {
	h.cancel()
}
