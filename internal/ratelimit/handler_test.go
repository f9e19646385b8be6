package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedResponse(status int, limit, usage string) *http.Response {
	header := http.Header{}
	if limit != "" {
		header.Set("X-RateLimit-Limit", limit)
	}
	if usage != "" {
		header.Set("X-RateLimit-Usage", usage)
	}
	return &http.Response{StatusCode: status, Header: header}
}

func TestSplitPair(t *testing.T) {
	a, b := splitPair("200,2000")
	assert.Equal(t, 200, a)
	assert.Equal(t, 2000, b)

	a, b = splitPair(" 15 , 150 ")
	assert.Equal(t, 15, a)
	assert.Equal(t, 150, b)

	a, b = splitPair("garbage")
	assert.Equal(t, 0, a)
	assert.Equal(t, 0, b)

	a, b = splitPair("")
	assert.Equal(t, 0, a)
	assert.Equal(t, 0, b)
}

func TestNextWindowStartQuarterHourBoundaries(t *testing.T) {
	tests := []struct {
		at   string
		want string
	}{
		{"2025-06-01T10:00:00Z", "2025-06-01T10:15:00Z"},
		{"2025-06-01T10:07:30Z", "2025-06-01T10:15:00Z"},
		{"2025-06-01T10:15:00Z", "2025-06-01T10:30:00Z"},
		{"2025-06-01T10:44:59Z", "2025-06-01T10:45:00Z"},
		{"2025-06-01T10:59:59Z", "2025-06-01T11:00:00Z"},
	}
	for _, tt := range tests {
		at, err := time.Parse(time.RFC3339, tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, nextWindowStart(at).Format(time.RFC3339), "at %s", tt.at)
	}
}

func TestNextMidnightUTC(t *testing.T) {
	at, err := time.Parse(time.RFC3339, "2025-06-01T23:59:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02T00:00:00Z", nextMidnightUTC(at).Format(time.RFC3339))

	early, err := time.Parse(time.RFC3339, "2025-06-01T00:00:01Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02T00:00:00Z", nextMidnightUTC(early).Format(time.RFC3339))
}

func TestCheckResponseRecordsShortWindowLimit(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	events := make(chan Event, 1)
	h.SetOnRateLimit(func(e Event) { events <- e })

	limited := h.CheckResponse(limitedResponse(http.StatusTooManyRequests, "200,2000", "205,900"))
	assert.True(t, limited)
	assert.True(t, h.IsLimited())

	select {
	case e := <-events:
		assert.Equal(t, http.StatusTooManyRequests, e.StatusCode)
		assert.Equal(t, 205, e.Usage.ShortTerm)
		assert.Equal(t, 2000, e.Usage.DailyLimit)
		assert.Contains(t, e.Message, "resume in about")
		// Short window recovery targets the next quarter hour, never
		// more than 15 minutes out.
		assert.LessOrEqual(t, time.Until(e.NextRetryAt), 15*time.Minute)
		assert.Greater(t, time.Until(e.NextRetryAt), time.Duration(0))
	case <-time.After(2 * time.Second):
		t.Fatal("rate limit callback never fired")
	}

	state := h.CurrentState()
	require.NotNil(t, state)
	assert.Equal(t, 205, state.Usage.ShortTerm)
}

func TestDailyQuotaSchedulesMidnightRecovery(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	h.CheckResponse(limitedResponse(http.StatusTooManyRequests, "200,2000", "50,2000"))

	state := h.CurrentState()
	require.NotNil(t, state)
	assert.Contains(t, state.Message, "daily request quota")
	assert.Equal(t, nextMidnightUTC(state.Timestamp), state.NextRetryAt)
}

func TestSuccessfulResponseClearsLimit(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	recovered := make(chan struct{}, 1)
	h.SetOnRecovered(func() { recovered <- struct{}{} })

	h.CheckResponse(limitedResponse(http.StatusTooManyRequests, "200,2000", "201,900"))
	require.True(t, h.IsLimited())

	limited := h.CheckResponse(limitedResponse(http.StatusOK, "200,2000", "150,910"))
	assert.False(t, limited)
	assert.False(t, h.IsLimited())
	assert.Nil(t, h.CurrentState())

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("recovery callback never fired")
	}
}

func TestUsageTrackedOnEveryResponse(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	h.CheckResponse(limitedResponse(http.StatusOK, "200,2000", "42,300"))

	usage := h.CurrentUsage()
	assert.Equal(t, 42, usage.ShortTerm)
	assert.Equal(t, 300, usage.Daily)
	assert.Equal(t, 200, usage.ShortTermLimit)

	// A response without headers keeps the last known usage.
	h.CheckResponse(limitedResponse(http.StatusOK, "", ""))
	assert.Equal(t, 42, h.CurrentUsage().ShortTerm)
}

func TestNonLimitedResponsePassesThrough(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	assert.False(t, h.CheckResponse(limitedResponse(http.StatusOK, "200,2000", "1,1")))
	assert.False(t, h.IsLimited())
	assert.Nil(t, h.CurrentState())
}
