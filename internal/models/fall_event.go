package models

import (
	"time"
)

// Severity 跌倒严重程度（有序）
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank 返回严重程度序号，LOW=0 ... CRITICAL=3，未知值返回 -1
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// EventStatus 跌倒事件状态
// DETECTED → NOTIFIED → RESOLVED，DETECTED/NOTIFIED → FALSE_POSITIVE
type EventStatus string

const (
	StatusDetected      EventStatus = "DETECTED"
	StatusNotified      EventStatus = "NOTIFIED"
	StatusFalsePositive EventStatus = "FALSE_POSITIVE"
	StatusResolved      EventStatus = "RESOLVED"
)

// IsTerminal FALSE_POSITIVE / RESOLVED 为终态
func (s EventStatus) IsTerminal() bool {
	return s == StatusFalsePositive || s == StatusResolved
}

// FallEvent 跌倒事件（对应 fall_events 表）
type FallEvent struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	SessionID       string      `json:"session_id" db:"session_id"`
	DetectedAt      time.Time   `json:"detected_at" db:"detected_at"`
	Severity        Severity    `json:"severity" db:"severity"`
	ConfidenceScore float64     `json:"confidence_score" db:"confidence_score"`
	BodyAngle       float64     `json:"body_angle" db:"body_angle"`
	FallType        string      `json:"fall_type" db:"fall_type"`
	Status          EventStatus `json:"status" db:"status"`
	FalsePositive   bool        `json:"false_positive" db:"false_positive"`
	UserFeedback    *string     `json:"user_feedback,omitempty" db:"user_feedback"`
	RulesFired      string      `json:"rules_fired" db:"rules_fired"` // 逗号分隔，如 "rapid_descent,angle_change"
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// FallAlert 通知/广播载荷
type FallAlert struct {
	EventID         string    `json:"event_id"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	FallType        string    `json:"fall_type"`
	Severity        Severity  `json:"severity"`
	ConfidenceScore float64   `json:"confidence_score"`
	DetectedAt      time.Time `json:"detected_at"`
}

// NewFallAlert 从事件构建通知载荷
func NewFallAlert(e *FallEvent) FallAlert {
	return FallAlert{
		EventID:         e.ID,
		UserID:          e.UserID,
		SessionID:       e.SessionID,
		FallType:        e.FallType,
		Severity:        e.Severity,
		ConfidenceScore: e.ConfidenceScore,
		DetectedAt:      e.DetectedAt,
	}
}
