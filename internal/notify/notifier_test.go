package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wisefido-pose/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent() *models.FallEvent {
	return &models.FallEvent{
		ID:              "event-1",
		UserID:          "user-1",
		SessionID:       "session-1",
		DetectedAt:      time.Date(2026, 3, 1, 8, 0, 3, 0, time.UTC),
		Severity:        models.SeverityHigh,
		ConfidenceScore: 0.86,
		BodyAngle:       -90,
		FallType:        "Lateral fall (left)",
		Status:          models.StatusDetected,
	}
}

func TestStreamNotifier_SendFallAlert(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := NewStreamNotifier(client, "pose:fall-alerts", 100, zap.NewNop())
	require.NoError(t, n.SendFallAlert(context.Background(), testEvent()))

	msgs, err := client.XRange(context.Background(), "pose:fall-alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var alert models.FallAlert
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &alert))
	assert.Equal(t, "event-1", alert.EventID)
	assert.Equal(t, "user-1", alert.UserID)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, "Lateral fall (left)", alert.FallType)
	assert.Equal(t, 0.86, alert.ConfidenceScore)
}

func TestStreamNotifier_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	n := NewStreamNotifier(client, "pose:fall-alerts", 100, zap.NewNop())
	assert.Error(t, n.SendFallAlert(context.Background(), testEvent()))
}

func TestWebhookNotifier_SendFallAlert(t *testing.T) {
	var received models.FallAlert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, zap.NewNop())
	require.NoError(t, n.SendFallAlert(context.Background(), testEvent()))
	assert.Equal(t, "event-1", received.EventID)
	assert.Equal(t, "session-1", received.SessionID)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, zap.NewNop())
	err := n.SendFallAlert(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type stubNotifier struct {
	err   error
	calls atomic.Int32
}

func (s *stubNotifier) SendFallAlert(context.Context, *models.FallEvent) error {
	s.calls.Add(1)
	return s.err
}

func TestMultiNotifier(t *testing.T) {
	ok := &stubNotifier{}
	failing := &stubNotifier{err: errors.New("boom")}

	m := NewMultiNotifier(failing, nil, ok)
	assert.Equal(t, 2, m.Len())
	assert.NoError(t, m.SendFallAlert(context.Background(), testEvent()))
	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, int32(1), failing.calls.Load())

	allFail := NewMultiNotifier(failing, &stubNotifier{err: errors.New("down")})
	err := allFail.SendFallAlert(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "down")

	assert.True(t, errors.Is(NewMultiNotifier().SendFallAlert(context.Background(), testEvent()), ErrNoChannel))
}
