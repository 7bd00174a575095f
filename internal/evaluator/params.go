package evaluator

import "time"

// Params 检测参数（均可由配置覆盖）
type Params struct {
	// 窗口
	MinFrames      int           // 窗口最少帧数（~1s @30fps）
	WindowDuration time.Duration // 分析窗口时长
	Cooldown       time.Duration // 去重冷却时间

	// 规则A：快速下降 + 静止
	StandingHeight     float64       // centerY 低于该值视为站立基线
	FloorHeight        float64       // centerY 高于该值视为接近地面
	RapidDescentWindow time.Duration // 站立→地面的最长时长
	StillnessThreshold float64       // motionScore 低于该值视为静止
	StillnessDuration  time.Duration // 末尾静止最短时长

	// 规则B：分阶段模式
	DescentVelocity     float64       // 进入 DESCENDING 的下降速度（/s）
	FastDescentVelocity float64       // 高速下降阈值（/s），坐下防误报也使用
	SlowPhaseVelocity   float64       // 第一阶段（缓慢/平稳）最大平均速度
	MinAcceleration     float64       // 第二阶段突变的最小加速度（/s²）
	SettleVelocity      float64       // |velocity| 低于该值视为稳定
	SettleDuration      time.Duration // 第三阶段最短时长
	MinDrop             float64       // 第一阶段→第三阶段最小高度变化

	// 规则C：角度突变
	UprightAngle         float64       // |bodyAngle| 低于该值视为直立（度）
	TiltedAngle          float64       // |bodyAngle| 高于该值视为倾倒（度）
	AngleChangeMaxFrames int           // 直立→倾倒允许的最大帧数
	AngleHoldDuration    time.Duration // 倾倒姿态需保持的时长

	// 防误报
	MinVisibility         float64       // 平均可见度阈值
	MaxUnreliableFraction float64       // 不可靠帧占比上限
	ConfidenceSwingMax    float64       // 相邻帧可见度变化的标准差上限（镜头晃动）
	CycleBand             float64       // 过零检测滞回带宽
	MinCycles             int           // 周期运动最少周期数
	MinCycleAmplitude     float64       // 周期运动最小峰峰值
	MaxCycleAmplitude     float64       // 周期运动最大峰峰值
	CycleRecency          time.Duration // 最后一次过零距窗口末尾的最大时长

	// 评分
	MinConfidence     float64       // 低于该置信度不生成事件
	CriticalStillness time.Duration // 静止时长达到该值时严重度加分封顶
}

// DefaultParams 默认检测参数（约 30fps 输入）
func DefaultParams() Params {
	return Params{
		MinFrames:      30,
		WindowDuration: 5 * time.Second,
		Cooldown:       30 * time.Second,

		StandingHeight:     0.4,
		FloorHeight:        0.7,
		RapidDescentWindow: time.Second,
		StillnessThreshold: 0.01,
		StillnessDuration:  2 * time.Second,

		DescentVelocity:     0.1,
		FastDescentVelocity: 0.3,
		SlowPhaseVelocity:   0.15,
		MinAcceleration:     1.0,
		SettleVelocity:      0.05,
		SettleDuration:      500 * time.Millisecond,
		MinDrop:             0.2,

		UprightAngle:         30,
		TiltedAngle:          60,
		AngleChangeMaxFrames: 10,
		AngleHoldDuration:    time.Second,

		MinVisibility:         0.5,
		MaxUnreliableFraction: 0.5,
		ConfidenceSwingMax:    0.15,
		CycleBand:             0.02,
		MinCycles:             2,
		MinCycleAmplitude:     0.1,
		MaxCycleAmplitude:     0.5,
		CycleRecency:          1500 * time.Millisecond,

		MinConfidence:     0.5,
		CriticalStillness: 10 * time.Second,
	}
}
