package evaluator

import (
	"context"
	"fmt"
	"time"

	"wisefido-pose/internal/models"
)

// EventFinder 去重所需的存储查询
type EventFinder interface {
	// FindRecentByUser 返回 detected_at > since 的事件
	FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*models.FallEvent, error)
}

// Deduplicator 冷却窗口内已有未结束（非终态）事件时抑制新候选
type Deduplicator struct {
	finder   EventFinder
	cooldown time.Duration
}

// NewDeduplicator 创建去重器
func NewDeduplicator(finder EventFinder, cooldown time.Duration) *Deduplicator {
	return &Deduplicator{finder: finder, cooldown: cooldown}
}

// CheckDuplicate 检查 at 时刻的候选是否重复，返回已存在的事件
func (d *Deduplicator) CheckDuplicate(ctx context.Context, userID string, at time.Time) (*models.FallEvent, error) {
	events, err := d.finder.FindRecentByUser(ctx, userID, at.Add(-d.cooldown))
	if err != nil {
		return nil, fmt.Errorf("failed to find recent fall events: %w", err)
	}
	for _, e := range events {
		if !e.Status.IsTerminal() {
			return e, nil
		}
	}
	return nil, nil
}
