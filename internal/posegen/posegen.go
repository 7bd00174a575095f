// Package posegen 生成合成姿态序列（直立、下降、横躺、周期运动），
// 用于回放工具的内置场景和检测链路的单元测试。
package posegen

import (
	"math"
	"time"

	"wisefido-pose/internal/models"
)

// Upright 直立姿态，躯干中心 Y 为 centerY
func Upright(centerY, visibility float64) []models.Landmark {
	lms := make([]models.Landmark, models.LandmarkCount)
	set := func(i int, x, dy float64) {
		lms[i] = point(x, centerY+dy, visibility)
	}
	// 头部 0-10
	for i := 0; i <= 10; i++ {
		set(i, 0.48+0.004*float64(i), -0.2)
	}
	set(11, 0.45, -0.1)
	set(12, 0.55, -0.1)
	set(13, 0.42, 0)
	set(14, 0.58, 0)
	set(15, 0.41, 0.08)
	set(16, 0.59, 0.08)
	for i := 17; i <= 22; i++ {
		if i%2 == 1 {
			set(i, 0.40, 0.1)
		} else {
			set(i, 0.60, 0.1)
		}
	}
	set(23, 0.46, 0.1)
	set(24, 0.54, 0.1)
	set(25, 0.46, 0.2)
	set(26, 0.54, 0.2)
	set(27, 0.46, 0.3)
	set(28, 0.54, 0.3)
	set(29, 0.45, 0.31)
	set(30, 0.55, 0.31)
	set(31, 0.47, 0.32)
	set(32, 0.53, 0.32)
	return lms
}

// Lying 横躺姿态（头朝画面左侧），躯干中心 Y 为 centerY
func Lying(centerY, visibility float64) []models.Landmark {
	lms := make([]models.Landmark, models.LandmarkCount)
	set := func(i int, x, dy float64) {
		lms[i] = point(x, centerY+dy, visibility)
	}
	for i := 0; i <= 10; i++ {
		set(i, 0.18+0.006*float64(i), -0.01)
	}
	set(11, 0.35, 0)
	set(12, 0.37, 0)
	set(13, 0.45, -0.03)
	set(14, 0.45, 0.03)
	set(15, 0.52, -0.04)
	set(16, 0.52, 0.04)
	for i := 17; i <= 22; i++ {
		if i%2 == 1 {
			set(i, 0.54, -0.04)
		} else {
			set(i, 0.54, 0.04)
		}
	}
	set(23, 0.63, 0)
	set(24, 0.65, 0)
	set(25, 0.75, -0.01)
	set(26, 0.75, 0.01)
	set(27, 0.86, -0.01)
	set(28, 0.86, 0.01)
	set(29, 0.88, -0.01)
	set(30, 0.88, 0.01)
	set(31, 0.90, -0.01)
	set(32, 0.90, 0.01)
	return lms
}

func point(x, y, visibility float64) models.Landmark {
	return models.Landmark{X: clamp01(x), Y: clamp01(y), Visibility: clamp01(visibility)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Builder 按固定帧率拼接姿态片段
type Builder struct {
	start      time.Time
	fps        int
	visibility float64
	n          int64
	frames     []models.RawFrame
}

// NewBuilder 创建序列构建器
func NewBuilder(start time.Time, fps int) *Builder {
	return &Builder{start: start, fps: fps, visibility: 0.95}
}

// Visibility 设置后续帧的关键点可见度
func (b *Builder) Visibility(v float64) *Builder {
	b.visibility = v
	return b
}

// frameCount 时长对应的帧数
func (b *Builder) frameCount(d time.Duration) int {
	return int(math.Round(d.Seconds() * float64(b.fps)))
}

// Next 下一帧的时间戳（整数帧号换算，避免累计误差）
func (b *Builder) Next() time.Time {
	return b.start.Add(time.Duration(b.n * int64(time.Second) / int64(b.fps)))
}

func (b *Builder) push(lms []models.Landmark) {
	b.frames = append(b.frames, models.RawFrame{Timestamp: b.Next(), Landmarks: lms})
	b.n++
}

// Stand 直立静止 d
func (b *Builder) Stand(centerY float64, d time.Duration) *Builder {
	for i := 0; i < b.frameCount(d); i++ {
		b.push(Upright(centerY, b.visibility))
	}
	return b
}

// Lie 横躺静止 d
func (b *Builder) Lie(centerY float64, d time.Duration) *Builder {
	for i := 0; i < b.frameCount(d); i++ {
		b.push(Lying(centerY, b.visibility))
	}
	return b
}

// Descend 在 d 内线性地从 from 移动到 to（末帧恰好为 to）；
// centerY 达到 lieAt 后切换为横躺姿态，lieAt > 1 表示始终直立
func (b *Builder) Descend(from, to float64, d time.Duration, lieAt float64) *Builder {
	count := b.frameCount(d)
	for k := 1; k <= count; k++ {
		y := from + (to-from)*float64(k)/float64(count)
		if y >= lieAt {
			b.push(Lying(y, b.visibility))
		} else {
			b.push(Upright(y, b.visibility))
		}
	}
	return b
}

// Oscillate 直立姿态下 centerY 在 [low, high] 间按余弦往复 cycles 个周期（从 low 开始）
func (b *Builder) Oscillate(low, high float64, period time.Duration, cycles int) *Builder {
	count := b.frameCount(period) * cycles
	perCycle := float64(b.frameCount(period))
	mid, amp := (low+high)/2, (high-low)/2
	for k := 1; k <= count; k++ {
		y := mid - amp*math.Cos(2*math.Pi*float64(k)/perCycle)
		b.push(Upright(y, b.visibility))
	}
	return b
}

// Frames 返回已生成的帧
func (b *Builder) Frames() []models.RawFrame {
	out := make([]models.RawFrame, len(b.frames))
	copy(out, b.frames)
	return out
}

// 内置场景名称
const (
	ScenarioClassicFall = "classic-fall"
	ScenarioSitDown     = "sit-down"
	ScenarioExercise    = "exercise"
	ScenarioChairFall   = "chair-fall"
)

// Scenario 返回内置场景帧序列，未知名称返回 nil
func Scenario(name string, start time.Time) []models.RawFrame {
	b := NewBuilder(start, 30)
	switch name {
	case ScenarioClassicFall:
		// 0.3 → 0.85 线性 1.5s，随后横躺静止
		b.Stand(0.3, time.Second).Descend(0.3, 0.85, 1500*time.Millisecond, 0.6).Lie(0.85, 2500*time.Millisecond)
	case ScenarioSitDown:
		b.Stand(0.3, time.Second).Descend(0.3, 0.55, 2*time.Second, 2).Stand(0.55, time.Second)
	case ScenarioExercise:
		b.Stand(0.3, time.Second).Oscillate(0.3, 0.6, time.Second, 3)
	case ScenarioChairFall:
		// 坐姿（已较低）直接侧倒
		b.Stand(0.55, 1500*time.Millisecond).Descend(0.55, 0.62, 200*time.Millisecond, 0.58).Lie(0.62, 2*time.Second)
	default:
		return nil
	}
	return b.Frames()
}
