package evaluator

import "math"

// RuleRapidDescent 规则A：快速下降 + 静止
// 直接读取 PhaseTracker 的增量状态，不扫描窗口
type RuleRapidDescent struct {
	params Params
}

// NewRuleRapidDescent 创建规则A
func NewRuleRapidDescent(params Params) *RuleRapidDescent {
	return &RuleRapidDescent{params: params}
}

// Name 规则名称
func (r *RuleRapidDescent) Name() string { return RuleNameRapidDescent }

// Evaluate 返回部分置信度，未触发返回 0
// 条件：centerY 在 RapidDescentWindow 内由站立基线到达地面；最新帧横躺；末尾静止 >= StillnessDuration
func (r *RuleRapidDescent) Evaluate(t *PhaseTracker) float64 {
	p := r.params
	last, ok := t.Last()
	if !ok || t.lastStandingAt.IsZero() || t.floorReachedAt.IsZero() {
		return 0
	}

	descent := t.floorReachedAt.Sub(t.lastStandingAt)
	if descent > p.RapidDescentWindow {
		return 0
	}
	if !last.IsHorizontal || t.HorizontalDuration() < p.StillnessDuration/2 {
		return 0
	}
	if t.stillSince.IsZero() || t.stillSince.Before(t.lastStandingAt) {
		return 0
	}
	still := t.StillDuration()
	if still < p.StillnessDuration {
		return 0
	}

	speed := clamp01(float64(p.RapidDescentWindow-descent) / float64(p.RapidDescentWindow))
	extra := clamp01(float64(still-p.StillnessDuration) / float64(p.StillnessDuration))
	return math.Min(1, 0.75+0.15*speed+0.1*extra)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
