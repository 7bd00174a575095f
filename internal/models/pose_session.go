package models

import "time"

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionEnded  SessionStatus = "ENDED"
)

// PoseSession 姿态采集会话（对应 pose_sessions 表）
type PoseSession struct {
	ID          string        `json:"id" db:"id"`
	SessionID   string        `json:"session_id" db:"session_id"`
	UserID      string        `json:"user_id" db:"user_id"`
	StartTime   time.Time     `json:"start_time" db:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty" db:"end_time"`
	Status      SessionStatus `json:"status" db:"status"`
	TotalFrames int64         `json:"total_frames" db:"total_frames"`
}
