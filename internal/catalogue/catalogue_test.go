package catalogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	pages   map[int]Page
	err     error
	block   chan struct{} // when set, FetchActivitiesPage waits on it
	started chan struct{} // when set, closed once a fetch begins
	fetches int
}

func (f *fakeSource) FetchActivitiesPage(ctx context.Context, page int) (Page, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return Page{}, f.err
	}
	p, ok := f.pages[page]
	if !ok {
		return Page{}, fmt.Errorf("no such page %d", page)
	}
	return p, nil
}

func makeSummaries(startID int64, n int, gpsEvery int) []Summary {
	out := make([]Summary, n)
	for i := range out {
		out[i] = Summary{
			ID:     startID + int64(i),
			Name:   fmt.Sprintf("Ride %d", startID+int64(i)),
			Type:   "Ride",
			HasGPS: gpsEvery > 0 && i%gpsEvery == 0,
		}
	}
	return out
}

func TestLoadPageAppendsAndTracksHasMore(t *testing.T) {
	src := &fakeSource{pages: map[int]Page{
		1: {Activities: makeSummaries(1, 20, 1), HasMore: true},
		2: {Activities: makeSummaries(21, 15, 1), HasMore: false},
	}}
	p := NewPager(src)

	require.NoError(t, p.LoadPage(context.Background(), 1))
	assert.Equal(t, 20, p.TotalCount())
	assert.True(t, p.State().HasMore)

	require.NoError(t, p.LoadNext(context.Background()))
	assert.Equal(t, 35, p.TotalCount())

	state := p.State()
	assert.Equal(t, 2, state.CurrentPage)
	assert.False(t, state.HasMore)

	// With nothing more to fetch, LoadNext is a silent no-op.
	fetchesBefore := src.fetches
	require.NoError(t, p.LoadNext(context.Background()))
	assert.Equal(t, fetchesBefore, src.fetches)
}

func TestLoadPageOneResetsCatalogue(t *testing.T) {
	src := &fakeSource{pages: map[int]Page{
		1: {Activities: makeSummaries(1, 5, 1), HasMore: true},
		2: {Activities: makeSummaries(101, 5, 1), HasMore: true},
	}}
	p := NewPager(src)

	require.NoError(t, p.LoadPage(context.Background(), 1))
	require.NoError(t, p.LoadPage(context.Background(), 2))
	require.Equal(t, 10, p.TotalCount())

	// Refresh serves new content for page 1; the old accumulation must
	// not survive, including ids that would now collide.
	src.pages[1] = Page{Activities: makeSummaries(1, 3, 1), HasMore: false}
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 3, p.TotalCount())
	assert.Equal(t, 1, p.State().CurrentPage)
}

func TestLoadPageFailureLeavesCatalogueUnchanged(t *testing.T) {
	src := &fakeSource{pages: map[int]Page{
		1: {Activities: makeSummaries(1, 20, 1), HasMore: true},
	}}
	p := NewPager(src)
	require.NoError(t, p.LoadPage(context.Background(), 1))

	src.err = errors.New("network down")
	err := p.LoadNext(context.Background())
	require.Error(t, err)

	assert.Equal(t, 20, p.TotalCount())
	state := p.State()
	assert.Equal(t, 1, state.CurrentPage)
	assert.True(t, state.HasMore)
	assert.False(t, state.IsLoading)

	// Recovery: the same page can be retried once the backend is back.
	src.err = nil
	src.pages[2] = Page{Activities: makeSummaries(21, 10, 1), HasMore: false}
	require.NoError(t, p.LoadNext(context.Background()))
	assert.Equal(t, 30, p.TotalCount())
}

func TestLoadPageSingleFlight(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	src := &fakeSource{
		pages:   map[int]Page{1: {Activities: makeSummaries(1, 2, 1)}},
		block:   block,
		started: started,
	}
	p := NewPager(src)

	done := make(chan error, 1)
	go func() { done <- p.LoadPage(context.Background(), 1) }()

	// Wait for the first load to claim the in-flight flag.
	<-started
	require.True(t, p.State().IsLoading)

	err := p.LoadPage(context.Background(), 1)
	require.ErrorIs(t, err, ErrFetchInFlight)

	// LoadNext while loading is a dropped no-op, not an error.
	require.NoError(t, p.LoadNext(context.Background()))

	close(block)
	require.NoError(t, <-done)
	assert.False(t, p.State().IsLoading)
}

func TestDuplicateIDAcrossPagesRejected(t *testing.T) {
	src := &fakeSource{pages: map[int]Page{
		1: {Activities: makeSummaries(1, 5, 1), HasMore: true},
		2: {Activities: makeSummaries(3, 5, 1), HasMore: false}, // overlaps ids 3..5
	}}
	p := NewPager(src)

	require.NoError(t, p.LoadPage(context.Background(), 1))
	err := p.LoadPage(context.Background(), 2)
	require.ErrorIs(t, err, ErrDuplicateActivity)
}

func TestRejectedPageLeavesCatalogueIntact(t *testing.T) {
	src := &fakeSource{pages: map[int]Page{
		1: {Activities: makeSummaries(1, 3, 1), HasMore: true},
		2: {Activities: []Summary{{ID: 10}, {ID: 2}, {ID: 11}}, HasMore: false},
	}}
	p := NewPager(src)
	require.NoError(t, p.LoadPage(context.Background(), 1))

	// Page 2 collides on id 2; nothing from it may land, not even the
	// entries preceding the duplicate.
	err := p.LoadPage(context.Background(), 2)
	require.ErrorIs(t, err, ErrDuplicateActivity)
	require.Equal(t, 3, p.TotalCount())
	all := p.Filtered(false)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
	assert.Equal(t, int64(3), all[2].ID)

	// A corrected page 2 must not collide with ids leaked from the
	// rejected attempt.
	src.pages[2] = Page{Activities: []Summary{{ID: 10}, {ID: 11}}, HasMore: false}
	require.NoError(t, p.LoadPage(context.Background(), 2))
	assert.Equal(t, 5, p.TotalCount())
}

func TestFilteredIsPureProjection(t *testing.T) {
	src := &fakeSource{pages: map[int]Page{
		1: {Activities: []Summary{
			{ID: 1, Name: "a", HasGPS: true},
			{ID: 2, Name: "b", HasGPS: false},
			{ID: 3, Name: "c", HasGPS: true},
		}},
	}}
	p := NewPager(src)
	require.NoError(t, p.LoadPage(context.Background(), 1))

	gps := p.Filtered(true)
	require.Len(t, gps, 2)
	assert.Equal(t, int64(1), gps[0].ID)
	assert.Equal(t, int64(3), gps[1].ID)

	// Toggling back returns everything in original order.
	all := p.Filtered(false)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[1].ID)

	// Mutating the returned slice must not touch the catalogue.
	all[0].Name = "mutated"
	again := p.Filtered(false)
	assert.Equal(t, "a", again[0].Name)

	assert.Equal(t, 3, p.TotalCount())
	assert.Equal(t, 2, p.GPSCount())
}

func TestInvalidPageNumber(t *testing.T) {
	p := NewPager(&fakeSource{})
	require.Error(t, p.LoadPage(context.Background(), 0))
}
