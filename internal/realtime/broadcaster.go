package realtime

import (
	"context"
	"errors"
	"time"
)

// Broadcaster 实时推送协作方
type Broadcaster interface {
	BroadcastFallAlert(ctx context.Context, userID, fallType, severityLabel string, confidenceScore float64) error
}

// AlertMessage 推送给前端的告警消息
type AlertMessage struct {
	Type            string    `json:"type"` // 固定为 "fall_alert"
	UserID          string    `json:"user_id"`
	FallType        string    `json:"fall_type"`
	Severity        string    `json:"severity"`
	ConfidenceScore float64   `json:"confidence_score"`
	SentAt          time.Time `json:"sent_at"`
}

// MessageTypeFallAlert 告警消息类型
const MessageTypeFallAlert = "fall_alert"

func newAlertMessage(userID, fallType, severityLabel string, confidenceScore float64) AlertMessage {
	return AlertMessage{
		Type:            MessageTypeFallAlert,
		UserID:          userID,
		FallType:        fallType,
		Severity:        severityLabel,
		ConfidenceScore: confidenceScore,
		SentAt:          time.Now().UTC(),
	}
}

// MultiBroadcaster 推送到全部实现，返回合并的错误
type MultiBroadcaster []Broadcaster

// BroadcastFallAlert 逐个推送，单个失败不影响其他
func (m MultiBroadcaster) BroadcastFallAlert(ctx context.Context, userID, fallType, severityLabel string, confidenceScore float64) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.BroadcastFallAlert(ctx, userID, fallType, severityLabel, confidenceScore); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
