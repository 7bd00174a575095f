package evaluator

import (
	"math"

	"wisefido-pose/internal/models"
)

// RuleStagedPattern 规则B：分阶段模式
// 阶段1 缓慢/平稳 → 阶段2 下降速度突变（不连续加速）→ 阶段3 稳定且横躺/贴地
// 受控坐下是连续、单调、无加速尖峰的，因此不会满足阶段2
type RuleStagedPattern struct {
	params Params
}

// NewRuleStagedPattern 创建规则B
func NewRuleStagedPattern(params Params) *RuleStagedPattern {
	return &RuleStagedPattern{params: params}
}

// Name 规则名称
func (r *RuleStagedPattern) Name() string { return RuleNameStagedPattern }

// Evaluate 扫描窗口，返回部分置信度，未触发返回 0
func (r *RuleStagedPattern) Evaluate(window []models.PoseFrame) float64 {
	p := r.params
	n := len(window)
	if n < 3 {
		return 0
	}

	// 峰值下降速度
	peak := -1
	for i := 1; i < n; i++ {
		if !window[i].HasPrev {
			continue
		}
		if peak < 0 || window[i].VelocityY > window[peak].VelocityY {
			peak = i
		}
	}
	if peak < 0 || window[peak].VelocityY < p.FastDescentVelocity {
		return 0
	}

	// 阶段2起点：向前回溯到最后一个慢速帧之后
	onset := peak
	for onset > 0 && window[onset-1].VelocityY > p.SlowPhaseVelocity {
		onset--
	}
	if onset < 3 {
		return 0
	}
	phase1 := window[:onset]
	var v1, c1 float64
	for _, f := range phase1 {
		v1 += f.VelocityY
		c1 += f.CenterY
	}
	v1 /= float64(len(phase1))
	c1 /= float64(len(phase1))
	if v1 > p.SlowPhaseVelocity {
		return 0
	}

	// 阶段2：onset 到峰值之间相邻帧速度的最大跃升
	var accel float64
	for i := onset; i <= peak; i++ {
		dt := window[i].Timestamp.Sub(window[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		accel = math.Max(accel, (window[i].VelocityY-window[i-1].VelocityY)/dt)
	}
	if accel < p.MinAcceleration {
		return 0
	}

	// 阶段3起点：峰值之后第一个稳定帧
	settle := -1
	for i := peak + 1; i < n; i++ {
		if math.Abs(window[i].VelocityY) <= p.SettleVelocity {
			settle = i
			break
		}
	}
	if settle < 0 {
		return 0
	}
	phase3 := window[settle:]
	if window[n-1].Timestamp.Sub(phase3[0].Timestamp) < p.SettleDuration {
		return 0
	}

	var still, horizontal int
	var c3 float64
	for _, f := range phase3 {
		if f.MotionScore < p.StillnessThreshold {
			still++
		}
		if f.IsHorizontal {
			horizontal++
		}
		c3 += f.CenterY
	}
	m := float64(len(phase3))
	stillFrac := float64(still) / m
	c3 /= m
	if stillFrac < 0.8 {
		return 0
	}
	if float64(horizontal)/m < 0.5 && c3 <= p.FloorHeight {
		return 0
	}
	drop := c3 - c1
	if drop < p.MinDrop {
		return 0
	}

	conf := 0.6 +
		0.15*clamp01(accel/(4*p.MinAcceleration)) +
		0.1*clamp01(drop/0.5) +
		0.1*stillFrac
	return math.Min(0.95, conf)
}
