package evaluator

import "math"

// RuleAngleChange 规则C：躯干角度突变
// 少量帧内由近竖直（< UprightAngle）变为近水平（> TiltedAngle），与绝对高度无关，
// 用于捕捉从较低姿态（如椅子上）跌倒
type RuleAngleChange struct {
	params Params
}

// NewRuleAngleChange 创建规则C
func NewRuleAngleChange(params Params) *RuleAngleChange {
	return &RuleAngleChange{params: params}
}

// Name 规则名称
func (r *RuleAngleChange) Name() string { return RuleNameAngleChange }

// Evaluate 读取 PhaseTracker 状态，返回部分置信度，未触发返回 0
func (r *RuleAngleChange) Evaluate(t *PhaseTracker) float64 {
	p := r.params
	last, ok := t.Last()
	if !ok || t.tiltedSince.IsZero() {
		return 0
	}
	if t.transitionFrames > int64(p.AngleChangeMaxFrames) {
		return 0
	}
	// 倾倒姿态需保持，过滤弯腰等短暂动作
	if last.Timestamp.Sub(t.tiltedSince) < p.AngleHoldDuration {
		return 0
	}

	angle := math.Abs(last.BodyAngle)
	extremity := clamp01((angle - p.TiltedAngle) / (90 - p.TiltedAngle))
	quickness := 1 - clamp01(float64(t.transitionFrames-1)/float64(p.AngleChangeMaxFrames))
	return 0.55 + 0.15*extremity + 0.1*quickness
}
