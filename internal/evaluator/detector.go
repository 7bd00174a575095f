package evaluator

import (
	"context"

	"wisefido-pose/internal/buffer"
	"wisefido-pose/internal/models"

	"go.uber.org/zap"
)

// Outcome 单次检测结果
type Outcome string

const (
	OutcomeDetected         Outcome = "DETECTED"
	OutcomeNegative         Outcome = "NEGATIVE"
	OutcomeInsufficientData Outcome = "INSUFFICIENT_DATA"
	OutcomeUnreliableSignal Outcome = "UNRELIABLE_SIGNAL"
	OutcomeSuppressed       Outcome = "SUPPRESSED" // 防误报规则命中
	OutcomeDuplicate        Outcome = "DUPLICATE"
	OutcomePersistFailed    Outcome = "PERSIST_FAILED"
	OutcomeRejected         Outcome = "REJECTED" // 畸形帧
)

// Outcomes 全部结果（用于指标初始化）
var Outcomes = []Outcome{
	OutcomeDetected, OutcomeNegative, OutcomeInsufficientData, OutcomeUnreliableSignal,
	OutcomeSuppressed, OutcomeDuplicate, OutcomePersistFailed, OutcomeRejected,
}

// Result 检测结果
type Result struct {
	Outcome    Outcome
	Reason     string // 命中的防误报规则 / 拒绝原因
	Candidate  Candidate
	Event      *models.FallEvent // 仅 DETECTED 时非空（尚未持久化）
	Duplicate  *models.FallEvent // 仅 DUPLICATE 时非空
	WindowSize int
}

// Detector 检测编排：窗口 → 分类 → 防误报 → 去重 → 评分 → 构建事件
// 自身无状态，可被多个 worker 共享；会话状态在 ring/tracker 中
type Detector struct {
	params     Params
	classifier *Classifier
	filter     *FalsePositiveFilter
	scorer     *Scorer
	dedup      *Deduplicator
	logger     *zap.Logger
}

// NewDetector 创建检测器
func NewDetector(params Params, finder EventFinder, logger *zap.Logger) *Detector {
	return &Detector{
		params:     params,
		classifier: NewClassifier(params),
		filter:     NewFalsePositiveFilter(params),
		scorer:     NewScorer(params),
		dedup:      NewDeduplicator(finder, params.Cooldown),
		logger:     logger,
	}
}

// Params 当前参数
func (d *Detector) Params() Params { return d.params }

// DetectFall 以会话最新帧为窗口末端执行一次检测
// 只返回结果，不持久化；DETECTED/DUPLICATE 时把当前过程标记为已处理
func (d *Detector) DetectFall(ctx context.Context, userID, sessionID string, ring *buffer.Ring, tracker *PhaseTracker) Result {
	last, ok := ring.Last()
	if !ok {
		return Result{Outcome: OutcomeInsufficientData}
	}

	// 窗口帧数、可见度与可靠帧占比均取缓冲区增量维护的聚合值
	stats := ring.Stats()
	if stats.Count < d.params.MinFrames {
		return Result{Outcome: OutcomeInsufficientData, WindowSize: stats.Count}
	}
	res := Result{WindowSize: stats.Count}

	if tracker.EpisodeHandled() {
		res.Outcome = OutcomeNegative
		return res
	}

	// 信号不可靠时几何量本身不可信，先于分类判定，便于与真阴性区分统计
	if g := d.filter.CheckSignal(stats); g.Vetoed {
		res.Outcome = OutcomeUnreliableSignal
		res.Reason = g.Detail
		return res
	}

	window := ring.WindowFrames()
	cand := d.classifier.Classify(window, tracker)
	res.Candidate = cand
	if !cand.Fired() {
		res.Outcome = OutcomeNegative
		return res
	}

	if g := d.filter.CheckMotion(window); g.Vetoed {
		res.Outcome = OutcomeSuppressed
		res.Reason = g.Guard
		d.logger.Debug("Fall candidate suppressed",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.String("guard", g.Guard),
			zap.String("rules", cand.RuleNames()),
		)
		return res
	}

	existing, err := d.dedup.CheckDuplicate(ctx, userID, last.Timestamp)
	if err != nil {
		// 查询失败时宁可重复告警也不漏报
		d.logger.Error("Failed to check duplicate fall event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	if existing != nil {
		tracker.MarkHandled()
		res.Outcome = OutcomeDuplicate
		res.Duplicate = existing
		res.Reason = existing.ID
		return res
	}

	score := d.scorer.Score(cand, tracker.StillDuration(), last.BodyAngle, stats.ReliableFraction)
	if score.ConfidenceScore < d.params.MinConfidence {
		res.Outcome = OutcomeNegative
		res.Reason = "confidence below threshold"
		return res
	}

	tracker.MarkHandled()
	res.Outcome = OutcomeDetected
	res.Event = NewFallEventBuilder(userID, sessionID).BuildFallEvent(last.Timestamp, cand, score)
	return res
}
