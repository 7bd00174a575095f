package repository

import (
	"context"
	"errors"
	"time"

	"wisefido-pose/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict 条件更新未命中（状态已被改变）
	ErrStatusConflict = errors.New("status conflict")
)

// FallEventsRepository 跌倒事件仓库接口
type FallEventsRepository interface {
	// Save 持久化新事件（DETECTED）
	Save(ctx context.Context, event *models.FallEvent) error

	// FindRecentByUser 获取 detected_at > since 的事件（用于去重检查），按 detected_at 降序
	FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*models.FallEvent, error)

	// FindByID 获取单个事件
	FindByID(ctx context.Context, eventID string) (*models.FallEvent, error)

	// ListByUser 查询用户事件，since 为零值时不限制起始时间
	ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.FallEvent, error)

	// UpdateStatus 仅当当前状态为 from 时更新为 to
	UpdateStatus(ctx context.Context, eventID string, from, to models.EventStatus) error

	// ApplyFeedback 写入反馈并进入终态；事件已是终态时返回 ErrStatusConflict
	ApplyFeedback(ctx context.Context, eventID string, to models.EventStatus, falsePositive bool, comment *string) error
}

// PoseSessionsRepository 姿态会话仓库接口
type PoseSessionsRepository interface {
	// Create 创建 ACTIVE 会话，session_id 已存在时忽略
	Create(ctx context.Context, session *models.PoseSession) error

	// End 结束会话并记录总帧数
	End(ctx context.Context, sessionID string, endTime time.Time, totalFrames int64) error

	// FindBySessionID 获取会话
	FindBySessionID(ctx context.Context, sessionID string) (*models.PoseSession, error)
}

// DefaultListLimit ListByUser 未指定 limit 时的条数
const DefaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
