package evaluator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-pose/internal/buffer"
	"wisefido-pose/internal/geometry"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/posegen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFinder 内存事件查询
type fakeFinder struct {
	mu     sync.Mutex
	events []*models.FallEvent
	err    error
}

func (f *fakeFinder) FindRecentByUser(_ context.Context, userID string, since time.Time) ([]*models.FallEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.FallEvent
	for _, e := range f.events {
		if e.UserID == userID && e.DetectedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeFinder) add(e *models.FallEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

// pipeline 单会话检测链路：分析 → 缓冲 → 阶段跟踪 → 检测
type pipeline struct {
	userID    string
	sessionID string
	analyzer  *geometry.Analyzer
	ring      *buffer.Ring
	tracker   *PhaseTracker
	detector  *Detector
	prev      *models.PoseFrame
}

func newPipeline(userID, sessionID string, params Params, finder EventFinder) *pipeline {
	return &pipeline{
		userID:    userID,
		sessionID: sessionID,
		analyzer:  geometry.NewAnalyzer(geometry.DefaultParams()),
		ring:      buffer.NewRing(180, params.WindowDuration),
		tracker:   NewPhaseTracker(params),
		detector:  NewDetector(params, finder, zap.NewNop()),
	}
}

func (p *pipeline) push(t *testing.T, raw models.RawFrame) Result {
	t.Helper()
	require.NoError(t, geometry.Validate(p.userID, p.sessionID, raw))
	frame := p.analyzer.Analyze(p.userID, p.sessionID, raw, p.prev)
	require.NoError(t, p.ring.Append(frame))
	p.tracker.Observe(frame)
	p.prev = &frame
	return p.detector.DetectFall(context.Background(), p.userID, p.sessionID, p.ring, p.tracker)
}

// run 逐帧检测，返回全部结果；finder 非空时 DETECTED 事件立即“持久化”
func (p *pipeline) run(t *testing.T, frames []models.RawFrame, finder *fakeFinder) []Result {
	t.Helper()
	results := make([]Result, 0, len(frames))
	for _, raw := range frames {
		res := p.push(t, raw)
		if res.Outcome == OutcomeDetected && finder != nil {
			finder.add(res.Event)
		}
		results = append(results, res)
	}
	return results
}

func detected(results []Result) []*models.FallEvent {
	var out []*models.FallEvent
	for _, r := range results {
		if r.Outcome == OutcomeDetected {
			out = append(out, r.Event)
		}
	}
	return out
}

func countOutcome(results []Result, o Outcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestDetectFall_ClassicFall(t *testing.T) {
	finder := &fakeFinder{}
	p := newPipeline("user-1", "session-1", DefaultParams(), finder)

	events := detected(p.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0), finder))

	require.Len(t, events, 1)
	e := events[0]
	assert.Contains(t, []models.Severity{models.SeverityHigh, models.SeverityCritical}, e.Severity)
	assert.GreaterOrEqual(t, e.ConfidenceScore, 0.7)
	assert.LessOrEqual(t, e.ConfidenceScore, 1.0)
	assert.Equal(t, models.StatusDetected, e.Status)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, "session-1", e.SessionID)
	assert.Equal(t, "Lateral fall (left)", e.FallType)
	assert.InDelta(t, -90, e.BodyAngle, 0.001)
	assert.NotEmpty(t, e.ID)
	assert.NotEmpty(t, e.RulesFired)
	assert.True(t, e.DetectedAt.After(t0))
}

func TestDetectFall_ClassicFallAllRulesEventuallyAgree(t *testing.T) {
	params := DefaultParams()
	p := newPipeline("user-1", "session-1", params, &fakeFinder{})
	frames := posegen.Scenario(posegen.ScenarioClassicFall, t0)
	for _, raw := range frames {
		p.push(t, raw)
	}

	window := p.ring.WindowFrames()
	cand := NewClassifier(params).Classify(window, p.tracker)

	assert.Contains(t, cand.Rules, RuleNameRapidDescent)
	assert.Contains(t, cand.Rules, RuleNameStagedPattern)
	assert.Contains(t, cand.Rules, RuleNameAngleChange)
	assert.Equal(t, "rapid_descent,staged_pattern,angle_change", cand.RuleNames())
	assert.InDelta(t, 1.0, cand.Confidence, 1e-9)
	assert.Equal(t, PhaseSettled, p.tracker.Phase())
}

func TestDetectFall_SitDownIsNotAFall(t *testing.T) {
	p := newPipeline("user-1", "session-1", DefaultParams(), &fakeFinder{})

	results := p.run(t, posegen.Scenario(posegen.ScenarioSitDown, t0), nil)

	assert.Empty(t, detected(results))
	assert.Zero(t, countOutcome(results, OutcomeDuplicate))
}

func TestDetectFall_ExerciseIsNotAFall(t *testing.T) {
	p := newPipeline("user-1", "session-1", DefaultParams(), &fakeFinder{})

	results := p.run(t, posegen.Scenario(posegen.ScenarioExercise, t0), nil)

	assert.Empty(t, detected(results))
}

func TestDetectFall_LowConfidenceIsNotAFall(t *testing.T) {
	p := newPipeline("user-1", "session-1", DefaultParams(), &fakeFinder{})
	frames := posegen.NewBuilder(t0, 30).Visibility(0.4).
		Stand(0.3, time.Second).
		Descend(0.3, 0.85, 1500*time.Millisecond, 0.6).
		Lie(0.85, 2500*time.Millisecond).
		Frames()

	results := p.run(t, frames, nil)

	assert.Empty(t, detected(results))
	assert.Positive(t, countOutcome(results, OutcomeUnreliableSignal))
	assert.Zero(t, countOutcome(results, OutcomeNegative))
}

func TestDetectFall_ChairFallCaughtByAngleChange(t *testing.T) {
	finder := &fakeFinder{}
	p := newPipeline("user-1", "session-1", DefaultParams(), finder)

	events := detected(p.run(t, posegen.Scenario(posegen.ScenarioChairFall, t0), finder))

	require.Len(t, events, 1)
	assert.Equal(t, RuleNameAngleChange, events[0].RulesFired)
	assert.GreaterOrEqual(t, events[0].ConfidenceScore, DefaultParams().MinConfidence)
}

func TestDetectFall_MinFramesBoundary(t *testing.T) {
	params := DefaultParams()

	t.Run("min_frames-1 is insufficient", func(t *testing.T) {
		p := newPipeline("user-1", "session-1", params, &fakeFinder{})
		b := posegen.NewBuilder(t0, 30)
		for i := 0; i < params.MinFrames-1; i++ {
			b.Stand(0.3, time.Second/30)
		}
		results := p.run(t, b.Frames(), nil)
		require.Len(t, results, params.MinFrames-1)
		last := results[len(results)-1]
		assert.Equal(t, OutcomeInsufficientData, last.Outcome)
		assert.Equal(t, params.MinFrames-1, last.WindowSize)
	})

	t.Run("exactly min_frames is analysed", func(t *testing.T) {
		p := newPipeline("user-1", "session-1", params, &fakeFinder{})
		b := posegen.NewBuilder(t0, 30)
		for i := 0; i < params.MinFrames; i++ {
			b.Stand(0.3, time.Second/30)
		}
		results := p.run(t, b.Frames(), nil)
		require.Len(t, results, params.MinFrames)
		last := results[len(results)-1]
		assert.Equal(t, OutcomeNegative, last.Outcome)
		assert.Equal(t, params.MinFrames, last.WindowSize)
		assert.Equal(t, params.MinFrames-1, countOutcome(results, OutcomeInsufficientData))
	})
}

func TestDetectFall_EpisodeProducesSingleEvent(t *testing.T) {
	// finder 不记录事件：去重查询始终为空，靠过程锁存保证只生成一次
	p := newPipeline("user-1", "session-1", DefaultParams(), &fakeFinder{})

	results := p.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0), nil)

	assert.Len(t, detected(results), 1)
	assert.True(t, p.tracker.EpisodeHandled())
}

func TestDetectFall_DedupWithinCooldown(t *testing.T) {
	params := DefaultParams()
	finder := &fakeFinder{}

	first := newPipeline("user-1", "session-1", params, finder)
	require.Len(t, detected(first.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0), finder)), 1)

	// 同一用户，冷却时间内的另一会话
	second := newPipeline("user-1", "session-2", params, finder)
	results := second.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0.Add(10*time.Second)), finder)
	assert.Empty(t, detected(results))
	assert.Equal(t, 1, countOutcome(results, OutcomeDuplicate))

	// 其他用户不受影响
	other := newPipeline("user-2", "session-3", params, finder)
	assert.Len(t, detected(other.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0.Add(10*time.Second)), finder)), 1)

	// 冷却结束后可再次生成
	later := newPipeline("user-1", "session-4", params, finder)
	assert.Len(t, detected(later.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0.Add(time.Minute)), finder)), 1)

	var user1 int
	for _, e := range finder.events {
		if e.UserID == "user-1" {
			user1++
		}
	}
	assert.Equal(t, 2, user1)
}

func TestDetectFall_TerminalEventDoesNotSuppress(t *testing.T) {
	finder := &fakeFinder{}
	finder.add(&models.FallEvent{
		ID:         "resolved-1",
		UserID:     "user-1",
		DetectedAt: t0.Add(time.Second),
		Status:     models.StatusFalsePositive,
	})
	p := newPipeline("user-1", "session-1", DefaultParams(), finder)

	events := detected(p.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0.Add(2*time.Second)), nil))

	assert.Len(t, events, 1)
}

func TestDetectFall_DedupQueryErrorStillDetects(t *testing.T) {
	finder := &fakeFinder{err: errors.New("connection refused")}
	p := newPipeline("user-1", "session-1", DefaultParams(), finder)

	events := detected(p.run(t, posegen.Scenario(posegen.ScenarioClassicFall, t0), nil))

	assert.Len(t, events, 1)
}

func TestDetectFall_EmptyRing(t *testing.T) {
	params := DefaultParams()
	d := NewDetector(params, &fakeFinder{}, zap.NewNop())

	res := d.DetectFall(context.Background(), "user-1", "session-1", buffer.NewRing(10, params.WindowDuration), NewPhaseTracker(params))

	assert.Equal(t, OutcomeInsufficientData, res.Outcome)
	assert.Nil(t, res.Event)
}

func TestDetectFall_ReadsRingWindowAggregates(t *testing.T) {
	params := DefaultParams()
	// 缓冲区聚合窗口 2s（短于 params.WindowDuration），检测结果应以缓冲区聚合值为准
	ring := buffer.NewRing(300, 2*time.Second)
	tracker := NewPhaseTracker(params)
	dt := time.Second / 30

	var all []models.PoseFrame
	for i := 0; i < 150; i++ {
		conf := 0.95
		if i < 90 {
			conf = 0.3 // 前 3s 遮挡
		}
		f := models.PoseFrame{
			UserID:            "user-1",
			SessionID:         "session-1",
			Timestamp:         t0.Add(time.Duration(i) * dt),
			CenterY:           0.3,
			OverallConfidence: conf,
			Reliable:          conf >= params.MinVisibility,
			HasPrev:           i > 0,
		}
		require.NoError(t, ring.Append(f))
		tracker.Observe(f)
		all = append(all, f)
	}

	stats := ring.Stats()
	require.Equal(t, 61, stats.Count)
	assert.InDelta(t, 60.0/61, stats.ReliableFraction, 1e-9)

	d := NewDetector(params, &fakeFinder{}, zap.NewNop())
	res := d.DetectFall(context.Background(), "user-1", "session-1", ring, tracker)

	assert.Equal(t, OutcomeNegative, res.Outcome)
	assert.Equal(t, stats.Count, res.WindowSize)
	// 同样的帧整体计算（5s）会因不可靠帧过多被判为信号不可靠
	assert.Equal(t, GuardUnreliableSignal, d.filter.Check(all).Guard)
}
