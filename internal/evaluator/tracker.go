package evaluator

import (
	"math"
	"time"

	"wisefido-pose/internal/models"
)

// Phase 会话阶段
type Phase string

const (
	PhaseBaseline   Phase = "BASELINE"
	PhaseDescending Phase = "DESCENDING"
	PhaseSettled    Phase = "SETTLED"
)

// PhaseTracker 每个会话的增量阶段状态：BASELINE → DESCENDING → SETTLED
// 每帧 O(1) 更新，规则A/C 直接读取，规则B 仅在 SETTLED 时扫描窗口
// 非并发安全：由会话所属的 worker 独占访问
type PhaseTracker struct {
	params Params

	phase          Phase
	seq            int64
	last           models.PoseFrame
	hasLast        bool
	descentStartAt time.Time
	settledAt      time.Time
	peakVelocity   float64

	// 规则A
	lastStandingAt  time.Time
	floorReachedAt  time.Time
	stillSince      time.Time
	horizontalSince time.Time

	// 规则C
	lastUprightSeq   int64
	tiltedSince      time.Time
	transitionFrames int64

	// 一次跌倒过程最多生成一个事件；身体恢复直立后重置
	episodeHandled bool
}

// NewPhaseTracker 创建阶段跟踪器
func NewPhaseTracker(params Params) *PhaseTracker {
	return &PhaseTracker{params: params, phase: PhaseBaseline}
}

// Observe 处理一帧（帧已按时间排序）
func (t *PhaseTracker) Observe(f models.PoseFrame) {
	p := t.params
	t.seq++
	ts := f.Timestamp
	absAngle := math.Abs(f.BodyAngle)
	upright := !f.IsHorizontal && absAngle < p.UprightAngle

	// 静止：与上一帧比较无位移，则静止从上一帧时刻开始
	if f.HasPrev && t.hasLast && f.MotionScore < p.StillnessThreshold {
		if t.stillSince.IsZero() {
			t.stillSince = t.last.Timestamp
		}
	} else {
		t.stillSince = time.Time{}
	}

	if f.IsHorizontal {
		if t.horizontalSince.IsZero() {
			t.horizontalSince = ts
		}
	} else {
		t.horizontalSince = time.Time{}
	}

	// 角度
	switch {
	case absAngle < p.UprightAngle:
		t.lastUprightSeq = t.seq
		t.tiltedSince = time.Time{}
	case absAngle > p.TiltedAngle:
		if t.tiltedSince.IsZero() {
			t.tiltedSince = ts
			if t.lastUprightSeq > 0 {
				t.transitionFrames = t.seq - t.lastUprightSeq
			} else {
				t.transitionFrames = math.MaxInt64
			}
		}
	default:
		t.tiltedSince = time.Time{}
	}

	// 高度
	if f.CenterY < p.StandingHeight && !f.IsHorizontal {
		t.lastStandingAt = ts
		t.floorReachedAt = time.Time{}
	} else if f.CenterY > p.FloorHeight && t.floorReachedAt.IsZero() && !t.lastStandingAt.IsZero() {
		t.floorReachedAt = ts
	}

	v := f.VelocityY
	switch t.phase {
	case PhaseBaseline:
		if v > p.DescentVelocity {
			t.enterDescent(ts, v)
		}
	case PhaseDescending:
		t.peakVelocity = math.Max(t.peakVelocity, v)
		switch {
		case !t.stillSince.IsZero() || (math.Abs(v) < p.SettleVelocity && (f.IsHorizontal || f.CenterY > p.FloorHeight)):
			t.phase = PhaseSettled
			t.settledAt = ts
		case upright && math.Abs(v) < p.SettleVelocity:
			t.phase = PhaseBaseline
		}
	case PhaseSettled:
		switch {
		case v > p.DescentVelocity:
			t.enterDescent(ts, v)
		case upright && math.Abs(v) < p.SettleVelocity:
			t.phase = PhaseBaseline
		}
	}

	if upright {
		t.episodeHandled = false
	}

	t.last = f
	t.hasLast = true
}

func (t *PhaseTracker) enterDescent(ts time.Time, v float64) {
	t.phase = PhaseDescending
	t.descentStartAt = ts
	t.settledAt = time.Time{}
	t.peakVelocity = v
}

// Phase 当前阶段
func (t *PhaseTracker) Phase() Phase { return t.phase }

// Last 最近一帧
func (t *PhaseTracker) Last() (models.PoseFrame, bool) { return t.last, t.hasLast }

// PeakVelocity 当前下降过程的峰值速度
func (t *PhaseTracker) PeakVelocity() float64 { return t.peakVelocity }

// StillDuration 截至最新帧的连续静止时长
func (t *PhaseTracker) StillDuration() time.Duration {
	if t.stillSince.IsZero() || !t.hasLast {
		return 0
	}
	return t.last.Timestamp.Sub(t.stillSince)
}

// HorizontalDuration 截至最新帧的连续横躺时长
func (t *PhaseTracker) HorizontalDuration() time.Duration {
	if t.horizontalSince.IsZero() || !t.hasLast {
		return 0
	}
	return t.last.Timestamp.Sub(t.horizontalSince)
}

// EpisodeHandled 当前跌倒过程是否已生成（或去重）事件
func (t *PhaseTracker) EpisodeHandled() bool { return t.episodeHandled }

// MarkHandled 标记当前过程已处理
func (t *PhaseTracker) MarkHandled() { t.episodeHandled = true }

// ClearHandled 取消标记（持久化失败时由下一帧重试）
func (t *PhaseTracker) ClearHandled() { t.episodeHandled = false }
