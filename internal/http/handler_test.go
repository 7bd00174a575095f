package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/geometry"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/posegen"
	"wisefido-pose/internal/repository"
	"wisefido-pose/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type testServer struct {
	server *httptest.Server
	events *repository.MemoryFallEventsRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	events := repository.NewMemoryFallEventsRepo()
	sessions := repository.NewMemoryPoseSessionsRepo()
	metrics := service.NewMetrics()
	params := evaluator.DefaultParams()

	emitter := service.NewEmitter(events, nil, nil, 16, 1, metrics, logger)
	dispatcher := service.NewDispatcher(
		service.DispatcherConfig{Workers: 2, QueueSize: 16, SessionTTL: time.Minute, EvictInterval: time.Hour, BufferCapacity: 180},
		geometry.NewAnalyzer(geometry.DefaultParams()),
		evaluator.NewDetector(params, events, logger),
		emitter, sessions, nil, metrics, logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	emitter.Start(ctx)
	dispatcher.Start(ctx)

	router := NewRouter(
		NewPoseHandler(service.NewPoseService(dispatcher, sessions, metrics, logger), logger),
		NewFallEventHandler(service.NewFallEventService(events, logger), logger),
		nil,
		logger,
	)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		dispatcher.Stop()
		emitter.Stop()
		cancel()
	})
	return &testServer{server: server, events: events}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, Result[json.RawMessage]) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result Result[json.RawMessage]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp, result
}

func (s *testServer) seed(t *testing.T, e *models.FallEvent) {
	t.Helper()
	require.NoError(t, s.events.Save(context.Background(), e))
}

func testEvent(id string) *models.FallEvent {
	return &models.FallEvent{
		ID:              id,
		UserID:          "user-1",
		SessionID:       "session-1",
		DetectedAt:      t0,
		Severity:        models.SeverityCritical,
		ConfidenceScore: 0.93,
		BodyAngle:       -90,
		FallType:        "Lateral fall (left)",
		Status:          models.StatusDetected,
		RulesFired:      "rapid_descent,staged_pattern,angle_change",
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, result := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ResultSuccess, result.Code)
}

func TestSubmitFrames_ClassicFallReturnsEvent(t *testing.T) {
	s := newTestServer(t)

	resp, result := s.do(t, http.MethodPost, "/api/v1/pose/frames", models.FrameBatch{
		UserID:    "user-1",
		SessionID: "session-1",
		Frames:    posegen.Scenario(posegen.ScenarioClassicFall, t0),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ResultSuccess, result.Code)

	var submit service.SubmitResult
	require.NoError(t, json.Unmarshal(result.Result, &submit))
	assert.Equal(t, evaluator.OutcomeDetected, submit.Outcome)
	require.NotNil(t, submit.Event)

	resp, result = s.do(t, http.MethodGet, "/api/v1/fall-events/"+submit.Event.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var event models.FallEvent
	require.NoError(t, json.Unmarshal(result.Result, &event))
	assert.Equal(t, submit.Event.Severity, event.Severity)
	assert.Equal(t, submit.Event.ConfidenceScore, event.ConfidenceScore)
	assert.Equal(t, submit.Event.BodyAngle, event.BodyAngle)

	resp, result = s.do(t, http.MethodGet, "/api/v1/pose/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap service.MetricsSnapshot
	require.NoError(t, json.Unmarshal(result.Result, &snap))
	assert.Equal(t, int64(1), snap.Outcomes[evaluator.OutcomeDetected])
}

func TestSubmitFrames_SingleFrameAndValidation(t *testing.T) {
	s := newTestServer(t)

	resp, result := s.do(t, http.MethodPost, "/api/v1/pose/frames", models.FrameBatch{
		UserID:    "user-1",
		SessionID: "session-1",
		Timestamp: t0,
		Landmarks: posegen.Upright(0.3, 0.9),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var submit service.SubmitResult
	require.NoError(t, json.Unmarshal(result.Result, &submit))
	assert.Equal(t, 1, submit.Accepted)
	assert.Equal(t, evaluator.OutcomeInsufficientData, submit.Outcome)

	resp, result = s.do(t, http.MethodPost, "/api/v1/pose/frames", models.FrameBatch{UserID: "user-1", SessionID: "session-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ResultError, result.Code)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/pose/frames", models.FrameBatch{
		UserID:    "user-2",
		SessionID: "session-1",
		Timestamp: t0.Add(time.Second),
		Landmarks: posegen.Upright(0.3, 0.9),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, result := s.do(t, http.MethodPost, "/api/v1/pose/sessions", map[string]string{"user_id": "user-1", "session_id": "session-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session models.PoseSession
	require.NoError(t, json.Unmarshal(result.Result, &session))
	assert.Equal(t, models.SessionActive, session.Status)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/pose/sessions", map[string]string{"user_id": "user-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, result = s.do(t, http.MethodPost, "/api/v1/pose/sessions/session-1/end", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(result.Result, &session))
	assert.Equal(t, models.SessionEnded, session.Status)

	resp, result = s.do(t, http.MethodGet, "/api/v1/pose/sessions/session-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(result.Result, &session))
	assert.Equal(t, models.SessionEnded, session.Status)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/pose/sessions/missing/end", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFallEventEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, testEvent("evt-1"))
	other := testEvent("evt-2")
	other.DetectedAt = t0.Add(time.Hour)
	s.seed(t, other)

	resp, result := s.do(t, http.MethodGet, "/api/v1/fall-events?user_id=user-1&limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list listResult
	require.NoError(t, json.Unmarshal(result.Result, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "evt-2", list.Items[0].ID)

	resp, result = s.do(t, http.MethodGet, "/api/v1/fall-events?user_id=user-1&since="+t0.Add(time.Minute).Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(result.Result, &list))
	assert.Equal(t, 1, list.Total)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/fall-events", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/fall-events?user_id=user-1&since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, result = s.do(t, http.MethodPost, "/api/v1/fall-events/evt-1/feedback", feedbackRequest{IsFalsePositive: true, Comment: "dropped the phone"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var event models.FallEvent
	require.NoError(t, json.Unmarshal(result.Result, &event))
	assert.Equal(t, models.StatusFalsePositive, event.Status)
	assert.True(t, event.FalsePositive)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/fall-events/evt-1/feedback", feedbackRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, result = s.do(t, http.MethodGet, "/api/v1/fall-events/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ResultError, result.Code)
}

func TestFallEventExport(t *testing.T) {
	s := newTestServer(t)
	e := testEvent("evt-1")
	comment := "resolved by nurse"
	e.UserFeedback = &comment
	s.seed(t, e)

	resp, err := http.Get(s.server.URL + "/api/v1/fall-events/export?user_id=user-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "fall-events-user-1-")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(FallEventExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, FallEventExportHeader, rows[0])
	assert.Equal(t, "evt-1", rows[1][0])
	assert.Equal(t, "CRITICAL", rows[1][4])
	assert.Equal(t, "resolved by nurse", rows[1][10])
}

func TestGenerateFallEventExport_Empty(t *testing.T) {
	data, err := GenerateFallEventExport(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(FallEventExportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, []string{FallEventExportSheet}, f.GetSheetList())
}

func TestParseTime(t *testing.T) {
	ts, err := parseTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	ts, err = parseTime("1772352000")
	require.NoError(t, err)
	assert.Equal(t, int64(1772352000), ts.Unix())

	ts, err = parseTime("2026-03-01T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, t0, ts)

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
