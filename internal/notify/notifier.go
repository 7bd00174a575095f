// Package notify 跌倒告警的外部通知（Redis 告警流、监护人 Webhook）。
// 重试策略由各通知实现自行负责，检测链路只关心成功与否。
package notify

import (
	"context"
	"errors"
	"fmt"

	"wisefido-pose/internal/models"
)

// Notifier 通知协作方
type Notifier interface {
	SendFallAlert(ctx context.Context, event *models.FallEvent) error
}

// MultiNotifier 依次调用全部通知渠道；任一渠道成功即视为已通知
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier 创建组合通知器（忽略 nil）
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len 渠道数量
func (m *MultiNotifier) Len() int { return len(m.notifiers) }

// SendFallAlert 未配置任何渠道时返回 ErrNoChannel
func (m *MultiNotifier) SendFallAlert(ctx context.Context, event *models.FallEvent) error {
	if len(m.notifiers) == 0 {
		return ErrNoChannel
	}
	var errs []error
	delivered := false
	for _, n := range m.notifiers {
		if err := n.SendFallAlert(ctx, event); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return fmt.Errorf("all notification channels failed: %w", errors.Join(errs...))
}

// ErrNoChannel 未配置通知渠道
var ErrNoChannel = errors.New("no notification channel configured")
