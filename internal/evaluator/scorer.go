package evaluator

import (
	"math"
	"time"

	"wisefido-pose/internal/models"
)

// Score 评分结果
type Score struct {
	Severity        models.Severity
	ConfidenceScore float64
	FallType        string
	BodyAngle       float64
	StillDuration   time.Duration
}

// Scorer 严重度与置信度评分
type Scorer struct {
	params Params
}

// NewScorer 创建评分器
func NewScorer(params Params) *Scorer {
	return &Scorer{params: params}
}

// Score 结合分类器置信度、跌倒后静止时长和躯干角度
// reliability 为窗口内可靠帧占比；不可靠帧只会降低置信度，不会提高
func (s *Scorer) Score(cand Candidate, stillDuration time.Duration, bodyAngle float64, reliability float64) Score {
	stillFactor := clamp01(float64(stillDuration) / float64(s.params.CriticalStillness))
	angleFactor := clamp01(math.Abs(bodyAngle) / 90)

	bonus := 0.1*clamp01(float64(stillDuration)/float64(s.params.CriticalStillness/2)) +
		0.05*clamp01((math.Abs(bodyAngle)-s.params.TiltedAngle)/(90-s.params.TiltedAngle))
	confidence := clamp01((cand.Confidence + bonus) * clamp01(reliability))

	severityScore := 0.5*confidence + 0.3*stillFactor + 0.2*angleFactor

	return Score{
		Severity:        SeverityFor(severityScore),
		ConfidenceScore: confidence,
		FallType:        FallType(bodyAngle),
		BodyAngle:       bodyAngle,
		StillDuration:   stillDuration,
	}
}

// SeverityFor 严重度分档
func SeverityFor(score float64) models.Severity {
	switch {
	case score >= 0.8:
		return models.SeverityCritical
	case score >= 0.6:
		return models.SeverityHigh
	case score >= 0.4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// FallType 根据躯干角度符号与大小给出跌倒方向
func FallType(bodyAngle float64) string {
	abs := math.Abs(bodyAngle)
	switch {
	case abs >= 75 && bodyAngle < 0:
		return "Lateral fall (left)"
	case abs >= 75:
		return "Lateral fall (right)"
	case bodyAngle >= 0:
		return "Forward fall"
	default:
		return "Backward fall"
	}
}
