package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("bogus"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestParseTypeFilter(t *testing.T) {
	assert.Nil(t, parseTypeFilter(""))
	assert.Nil(t, parseTypeFilter(" , "))

	f := parseTypeFilter("process.FINISHED, process.FAILED")
	assert.True(t, f.allows("process.FINISHED"))
	assert.True(t, f.allows("process.FAILED"))
	assert.False(t, f.allows("process.RUNNING"))

	assert.True(t, typeFilter(nil).allows("anything"))
}

func TestEventsReplayRespectsFilterAndLastEventID(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	s.events.Publish("process.ENQUEUED", map[string]any{"instance_id": "a"})
	s.events.Publish("process.FINISHED", map[string]any{"instance_id": "a"})
	s.events.Publish("process.FINISHED", map[string]any{"instance_id": "b"})

	// A cancelled context makes the handler exit right after the replay.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/events?types=process.FINISHED", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Last-Event-ID", "2")
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 3\n")
	assert.Contains(t, body, "event: process.FINISHED")
	assert.NotContains(t, body, "id: 1\n")
	assert.NotContains(t, body, "id: 2\n")
}
