// Package catalogue accumulates paged activity summaries into a
// stable, filterable catalogue. Pages are requested one at a time; the
// GPS-only filter is a pure projection so toggling it never discards
// fetched data.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// PerPage is the page size requested from the backend (the Strava API
// maximum for the athlete activities endpoint).
const PerPage = 30

var (
	// ErrFetchInFlight is returned when a page load is attempted while
	// another one has not settled yet.
	ErrFetchInFlight = errors.New("a page fetch is already in flight")

	// ErrDuplicateActivity indicates the backend repeated an activity id
	// across pages, which would corrupt the catalogue.
	ErrDuplicateActivity = errors.New("duplicate activity id across pages")
)

// Summary is one activity as listed in the catalogue. Identity is ID;
// a summary is immutable once received.
type Summary struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Type              string  `json:"type"`
	StartDate         string  `json:"startDate"` // RFC3339
	DistanceMeters    float64 `json:"distanceMeters"`
	MovingTimeSeconds int     `json:"movingTimeSeconds"`
	MaxSpeed          float64 `json:"maxSpeed"` // m/s
	HasGPS            bool    `json:"hasGPS"`
}

// Page is one backend response batch.
type Page struct {
	Activities []Summary `json:"activities"`
	HasMore    bool      `json:"hasMore"`
}

// PageSource is the backend contract the pager depends on.
type PageSource interface {
	FetchActivitiesPage(ctx context.Context, page int) (Page, error)
}

// State is a snapshot of the pager for the frontend.
type State struct {
	CurrentPage int  `json:"currentPage"`
	HasMore     bool `json:"hasMore"`
	IsLoading   bool `json:"isLoading"`
	TotalCount  int  `json:"totalCount"`
	GPSCount    int  `json:"gpsCount"`
}

// Pager accumulates activity pages. All mutation goes through LoadPage
// and LoadNext; reads return copies.
type Pager struct {
	mu          sync.Mutex
	source      PageSource
	activities  []Summary
	seen        map[int64]struct{}
	currentPage int
	hasMore     bool
	isLoading   bool
}

// NewPager creates an empty pager backed by the given source.
func NewPager(source PageSource) *Pager {
	return &Pager{
		source:  source,
		seen:    make(map[int64]struct{}),
		hasMore: true,
	}
}

// LoadPage requests page n from the backend. Page 1 resets the
// catalogue before appending, which implements refresh. On failure the
// catalogue is left at its last-good value and the load may simply be
// retried; the in-flight flag is cleared on every path.
func (p *Pager) LoadPage(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("invalid page %d", n)
	}

	p.mu.Lock()
	if p.isLoading {
		p.mu.Unlock()
		return ErrFetchInFlight
	}
	p.isLoading = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.isLoading = false
		p.mu.Unlock()
	}()

	page, err := p.source.FetchActivitiesPage(ctx, n)
	if err != nil {
		log.Printf("[Catalogue] Page %d fetch failed: %v", n, err)
		return fmt.Errorf("failed to load activities page %d: %w", n, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Validate the whole batch before touching anything: a rejected
	// page must leave the catalogue at its last-good value so a
	// corrected retry can succeed.
	stage := make(map[int64]struct{}, len(p.seen)+len(page.Activities))
	if n != 1 {
		for id := range p.seen {
			stage[id] = struct{}{}
		}
	}
	for _, act := range page.Activities {
		if _, dup := stage[act.ID]; dup {
			return fmt.Errorf("%w: %d on page %d", ErrDuplicateActivity, act.ID, n)
		}
		stage[act.ID] = struct{}{}
	}

	if n == 1 {
		p.activities = nil
	}
	p.seen = stage
	p.activities = append(p.activities, page.Activities...)
	p.currentPage = n
	p.hasMore = page.HasMore

	log.Printf("[Catalogue] Page %d loaded: %d activities (%d total, hasMore=%v)",
		n, len(page.Activities), len(p.activities), page.HasMore)
	return nil
}

// LoadNext loads the page after the last successful one. It is a no-op
// when there is nothing more to fetch or a fetch is already running.
func (p *Pager) LoadNext(ctx context.Context) error {
	p.mu.Lock()
	if !p.hasMore || p.isLoading {
		p.mu.Unlock()
		return nil
	}
	next := p.currentPage + 1
	p.mu.Unlock()
	return p.LoadPage(ctx, next)
}

// Refresh reloads the catalogue from the first page.
func (p *Pager) Refresh(ctx context.Context) error {
	return p.LoadPage(ctx, 1)
}

// Filtered returns the catalogue projection the activity grid renders:
// all activities, or only those with GPS data, in catalogue order. The
// returned slice is a copy.
func (p *Pager) Filtered(gpsOnly bool) []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !gpsOnly {
		out := make([]Summary, len(p.activities))
		copy(out, p.activities)
		return out
	}
	out := make([]Summary, 0, len(p.activities))
	for _, act := range p.activities {
		if act.HasGPS {
			out = append(out, act)
		}
	}
	return out
}

// TotalCount returns how many activities have been accumulated.
func (p *Pager) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.activities)
}

// GPSCount returns how many accumulated activities carry GPS data.
func (p *Pager) GPSCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, act := range p.activities {
		if act.HasGPS {
			n++
		}
	}
	return n
}

// State returns a snapshot of the paging state plus derived counts.
func (p *Pager) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	gps := 0
	for _, act := range p.activities {
		if act.HasGPS {
			gps++
		}
	}
	return State{
		CurrentPage: p.currentPage,
		HasMore:     p.hasMore,
		IsLoading:   p.isLoading,
		TotalCount:  len(p.activities),
		GPSCount:    gps,
	}
}

// Get returns the summary for an activity id, if accumulated.
func (p *Pager) Get(id int64) (Summary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, act := range p.activities {
		if act.ID == id {
			return act, true
		}
	}
	return Summary{}, false
}
