package evaluator

import (
	"time"

	"wisefido-pose/internal/models"

	"github.com/google/uuid"
)

// FallEventBuilder 跌倒事件构建器
type FallEventBuilder struct {
	userID    string
	sessionID string
}

// NewFallEventBuilder 创建跌倒事件构建器
func NewFallEventBuilder(userID, sessionID string) *FallEventBuilder {
	return &FallEventBuilder{
		userID:    userID,
		sessionID: sessionID,
	}
}

// BuildFallEvent 构建 DETECTED 状态的跌倒事件
// detectedAt 为触发帧的时间戳（而非处理时刻），回放与去重都以帧时间为准
func (b *FallEventBuilder) BuildFallEvent(detectedAt time.Time, cand Candidate, score Score) *models.FallEvent {
	now := time.Now()
	return &models.FallEvent{
		ID:              uuid.New().String(),
		UserID:          b.userID,
		SessionID:       b.sessionID,
		DetectedAt:      detectedAt,
		Severity:        score.Severity,
		ConfidenceScore: score.ConfidenceScore,
		BodyAngle:       score.BodyAngle,
		FallType:        score.FallType,
		Status:          models.StatusDetected,
		FalsePositive:   false,
		RulesFired:      cand.RuleNames(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
