package evaluator

import (
	"math"

	"wisefido-pose/internal/buffer"
	"wisefido-pose/internal/models"

	"gonum.org/v1/gonum/stat"
)

// 防误报规则名称
const (
	GuardUnreliableSignal = "unreliable_signal"
	GuardSitting          = "sitting"
	GuardCyclicMotion     = "cyclic_motion"
)

// GuardResult 防误报判定结果
type GuardResult struct {
	Vetoed bool
	Guard  string // 命中的规则
	Detail string
}

// FalsePositiveFilter 候选触发后、评分前执行；任一规则命中即判定为“无事件”
type FalsePositiveFilter struct {
	params Params
}

// NewFalsePositiveFilter 创建防误报过滤器
func NewFalsePositiveFilter(params Params) *FalsePositiveFilter {
	return &FalsePositiveFilter{params: params}
}

// Check 依次检查：信号不可靠 → 坐下 → 周期运动（整体计算窗口聚合值）
func (f *FalsePositiveFilter) Check(window []models.PoseFrame) GuardResult {
	if len(window) == 0 {
		return GuardResult{Vetoed: true, Guard: GuardUnreliableSignal, Detail: "empty window"}
	}
	if r := f.CheckSignal(buffer.Summarize(window)); r.Vetoed {
		return r
	}
	return f.CheckMotion(window)
}

// CheckSignal 平均可见度过低、不可靠帧过多，或相邻帧可见度剧烈波动（镜头移动而非身体移动）
// 只读取窗口聚合值，缓冲区追加时已增量维护
func (f *FalsePositiveFilter) CheckSignal(stats buffer.Stats) GuardResult {
	p := f.params
	if stats.Count == 0 {
		return GuardResult{Vetoed: true, Guard: GuardUnreliableSignal, Detail: "empty window"}
	}
	if stats.MeanConfidence < p.MinVisibility {
		return GuardResult{Vetoed: true, Guard: GuardUnreliableSignal, Detail: "mean visibility below threshold"}
	}
	if 1-stats.ReliableFraction > p.MaxUnreliableFraction {
		return GuardResult{Vetoed: true, Guard: GuardUnreliableSignal, Detail: "too many unreliable frames"}
	}
	if stats.ConfidenceSwing > p.ConfidenceSwingMax {
		return GuardResult{Vetoed: true, Guard: GuardUnreliableSignal, Detail: "erratic visibility swings"}
	}
	return GuardResult{}
}

// CheckMotion 坐下 → 周期运动
func (f *FalsePositiveFilter) CheckMotion(window []models.PoseFrame) GuardResult {
	if r := f.checkSitting(window); r.Vetoed {
		return r
	}
	return f.checkCyclic(window)
}

// checkSitting 单调缓慢下降，窗口内没有任何高速下降
func (f *FalsePositiveFilter) checkSitting(window []models.PoseFrame) GuardResult {
	p := f.params
	if len(window) < 2 {
		return GuardResult{}
	}
	nonRising := 0
	for _, fr := range window {
		if fr.VelocityY >= p.FastDescentVelocity {
			return GuardResult{}
		}
		if fr.VelocityY >= -p.SettleVelocity {
			nonRising++
		}
	}
	drop := window[len(window)-1].CenterY - window[0].CenterY
	if drop > 0 && float64(nonRising)/float64(len(window)) >= 0.9 {
		return GuardResult{Vetoed: true, Guard: GuardSitting, Detail: "monotonic slow descent"}
	}
	return GuardResult{}
}

// checkCyclic 去均值后的高度序列带滞回过零计数；振幅有界、周期数足够且仍在持续
func (f *FalsePositiveFilter) checkCyclic(window []models.PoseFrame) GuardResult {
	p := f.params
	heights := make([]float64, len(window))
	for i, fr := range window {
		heights[i] = fr.CenterY
	}

	crossings, lastCrossing := ZeroCrossings(heights, p.CycleBand)
	if crossings < 2*p.MinCycles || lastCrossing < 0 {
		return GuardResult{}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range heights {
		lo = math.Min(lo, h)
		hi = math.Max(hi, h)
	}
	amp := hi - lo
	if amp < p.MinCycleAmplitude || amp > p.MaxCycleAmplitude {
		return GuardResult{}
	}

	end := window[len(window)-1].Timestamp
	if end.Sub(window[lastCrossing].Timestamp) > p.CycleRecency {
		return GuardResult{}
	}
	return GuardResult{Vetoed: true, Guard: GuardCyclicMotion, Detail: "periodic height oscillation"}
}

// ZeroCrossings 去均值后穿越 ±band 的次数，以及最后一次穿越的下标（无穿越为 -1）
func ZeroCrossings(series []float64, band float64) (int, int) {
	if len(series) == 0 {
		return 0, -1
	}
	mean := stat.Mean(series, nil)
	state := 0 // -1 低于 -band，+1 高于 +band
	count, last := 0, -1
	for i, v := range series {
		d := v - mean
		var s int
		switch {
		case d > band:
			s = 1
		case d < -band:
			s = -1
		default:
			continue
		}
		if state != 0 && s != state {
			count++
			last = i
		}
		state = s
	}
	return count, last
}
