package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"wisefido-pose/internal/config"
	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/posegen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func replayConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestRunReplay_ClassicFall(t *testing.T) {
	cfg := replayConfig(t)
	var out bytes.Buffer
	opts := replayOptions{userID: "user-1", sessionID: "session-1"}

	summary, err := runReplay(context.Background(), cfg, posegen.Scenario(posegen.ScenarioClassicFall, t0), opts, &out, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Outcomes[evaluator.OutcomeDetected])
	require.Len(t, summary.Events, 1)
	assert.Contains(t, out.String(), "DETECTED")
}

func TestRunReplay_SitDownBatched(t *testing.T) {
	cfg := replayConfig(t)
	var out bytes.Buffer
	opts := replayOptions{userID: "user-1", sessionID: "session-1", batch: 30}

	frames := posegen.Scenario(posegen.ScenarioSitDown, t0)
	summary, err := runReplay(context.Background(), cfg, frames, opts, &out, zap.NewNop())
	require.NoError(t, err)

	assert.Zero(t, summary.Outcomes[evaluator.OutcomeDetected])
	assert.Empty(t, summary.Events)
	total := 0
	for _, n := range summary.Outcomes {
		total += n
	}
	assert.Equal(t, (len(frames)+29)/30, total)
}

func TestRunReplay_SQLite(t *testing.T) {
	cfg := replayConfig(t)
	var out bytes.Buffer
	opts := replayOptions{userID: "user-1", sessionID: "session-1", batch: 50, sqlite: t.TempDir() + "/replay.db"}

	summary, err := runReplay(context.Background(), cfg, posegen.Scenario(posegen.ScenarioClassicFall, t0), opts, &out, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, summary.Events, 1)
}

func TestParseReplayFrames(t *testing.T) {
	frames := posegen.NewBuilder(t0, 30).Stand(0.3, 100*time.Millisecond).Frames()

	arr, err := json.Marshal(frames)
	require.NoError(t, err)
	parsed, err := parseReplayFrames(arr)
	require.NoError(t, err)
	assert.Len(t, parsed, len(frames))

	obj, err := json.Marshal(map[string]any{"user_id": "u", "session_id": "s", "frames": frames})
	require.NoError(t, err)
	parsed, err = parseReplayFrames(append([]byte("  \n"), obj...))
	require.NoError(t, err)
	assert.Len(t, parsed, len(frames))
	assert.True(t, parsed[0].Timestamp.Equal(t0))

	_, err = parseReplayFrames([]byte("not json"))
	assert.Error(t, err)
}

func TestLoadReplayFrames_UnknownScenario(t *testing.T) {
	_, err := loadReplayFrames(replayOptions{scenario: "cartwheel"})
	assert.Error(t, err)
}
