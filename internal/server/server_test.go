package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/venuewatch/api"
	"github.com/venuewatch/venuewatch/internal/agent"
	"github.com/venuewatch/venuewatch/internal/analysis"
	"github.com/venuewatch/venuewatch/internal/dispatch"
	"github.com/venuewatch/venuewatch/internal/pipeline"
	"github.com/venuewatch/venuewatch/internal/store"
)

type fakeTransport struct {
	calls int
	fail  error
}

func (f *fakeTransport) TopicPath() string { return "projects/test/topics/dispatcher" }

func (f *fakeTransport) Publish(_ context.Context, _ []byte, _ map[string]string) (string, error) {
	f.calls++
	if f.fail != nil {
		return "", f.fail
	}
	return "55512345678901234", nil
}

func newTestServer(t *testing.T, ft *fakeTransport) (*Server, *store.Store) {
	t.Helper()
	events := store.New()
	units := analysis.DefaultUnits()
	pub := dispatch.NewPublisher(ft)
	policy := dispatch.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}

	router, err := agent.NewRouter(
		&agent.DispatchPersona{Publisher: pub, Units: units, Policy: policy},
		&agent.QueryPersona{Store: events},
		&agent.ReportPersona{Store: events, Narrator: agent.StaticNarrator{}},
	)
	require.NoError(t, err)

	return New(pipeline.New(events, pub, units, policy), events, router), events
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const actionablePayload = `{
	"crowd_density_increase": true,
	"restricted_movements": true,
	"fire_smoke_detected": false,
	"unit_to_dispatch": "Police station unit",
	"recommendations": "Open additional exits.",
	"summary": "Severe congestion on the concourse."
}`

func TestIngestEndpoint(t *testing.T) {
	srv, events := newTestServer(t, &fakeTransport{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/events",
		map[string]json.RawMessage{"analysis": json.RawMessage(actionablePayload)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Dispatched)
	assert.Regexp(t, `^\d+$`, resp.MessageID)
	assert.Equal(t, "projects/test/topics/dispatcher", resp.TopicPath)
	assert.Equal(t, 1, events.Len())

	// The bare payload (no wrapper) is accepted too.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/events", json.RawMessage(actionablePayload))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestIngestEndpoint_ValidationFailure(t *testing.T) {
	srv, events := newTestServer(t, &fakeTransport{})

	payload := `{
		"crowd_density_increase": false,
		"restricted_movements": false,
		"fire_smoke_detected": false,
		"unit_to_dispatch": "Fire unit",
		"recommendations": "n/a",
		"summary": "Nothing detected."
	}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/events", json.RawMessage(payload))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "unit_to_dispatch")
	assert.Equal(t, 0, events.Len())
}

func TestIngestEndpoint_RetryablePublishFailure(t *testing.T) {
	srv, events := newTestServer(t, &fakeTransport{fail: context.DeadlineExceeded})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/events", json.RawMessage(actionablePayload))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	// The event itself was accepted.
	assert.Equal(t, 1, events.Len())
}

func TestEventEndpoints(t *testing.T) {
	srv, events := newTestServer(t, &fakeTransport{})
	a, err := analysis.Validate([]byte(actionablePayload), analysis.DefaultUnits())
	require.NoError(t, err)
	now := time.Date(2025, 7, 27, 4, 13, 33, 187916000, time.UTC)
	key, err := events.Put(a, now)
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/events/"+string(key), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var e api.EventJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, string(key), e.Key)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/events/event_2099-01-01T00:00:00.000000000+00:00Z", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/events?since=2025-07-27T04:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []api.EventJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/events?since=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatFlow(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTransport{})

	// First message creates the session.
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat",
		api.ChatRequest{Message: "dispatch a medical unit to Zone A urgent"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "dispatch_agent", resp.Persona)
	assert.Contains(t, resp.Text, "Published message ID: 55512345678901234 to projects/test/topics/dispatcher")

	// Audit history shows the transfer.
	rec = doJSON(t, srv.Handler(), http.MethodGet, fmt.Sprintf("/api/v1/chat/%s/history", resp.SessionID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist api.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.NotEmpty(t, hist.Lines)
	assert.Equal(t, "Event from an agent: dispatch_agent, event id: none", hist.Lines[0])

	// Disconnect, then further turns are rejected.
	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/v1/chat/"+resp.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat",
		api.ChatRequest{SessionID: resp.SessionID, Message: "hello again"})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestChat_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTransport{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat",
		api.ChatRequest{SessionID: "nope", Message: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_EmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTransport{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat", api.ChatRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTransport{})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "venuewatch")
}
