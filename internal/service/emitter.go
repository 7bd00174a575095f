package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/notify"
	"wisefido-pose/internal/realtime"
	"wisefido-pose/internal/repository"

	"go.uber.org/zap"
)

// deliveryTimeout 单个事件的通知 + 推送超时
const deliveryTimeout = 15 * time.Second

// Emitter 跌倒事件发布：同步持久化（DETECTED），异步通知（→ NOTIFIED）和实时推送
type Emitter struct {
	repo        repository.FallEventsRepository
	notifier    notify.Notifier       // 可为 nil
	broadcaster realtime.Broadcaster // 可为 nil
	metrics     *Metrics
	logger      *zap.Logger

	workers int
	queue   chan *models.FallEvent

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEmitter 创建发布器；queueSize/workers 为后台通知队列参数
func NewEmitter(
	repo repository.FallEventsRepository,
	notifier notify.Notifier,
	broadcaster realtime.Broadcaster,
	queueSize, workers int,
	metrics *Metrics,
	logger *zap.Logger,
) *Emitter {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Emitter{
		repo:        repo,
		notifier:    notifier,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		workers:     workers,
		queue:       make(chan *models.FallEvent, queueSize),
	}
}

// Start 启动后台通知 worker
func (e *Emitter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.run(ctx)
	}
}

// Stop 停止接收新事件，处理完队列中剩余事件后返回
func (e *Emitter) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	if e.cancel != nil {
		e.cancel()
	}
}

// Emit 持久化事件后交给后台通知；持久化失败返回错误，通知从不影响返回值
func (e *Emitter) Emit(ctx context.Context, event *models.FallEvent) error {
	if err := e.repo.Save(ctx, event); err != nil {
		return fmt.Errorf("failed to persist fall event: %w", err)
	}

	e.logger.Info("Fall event persisted",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.String("severity", string(event.Severity)),
		zap.Float64("confidence_score", event.ConfidenceScore),
		zap.String("fall_type", event.FallType),
		zap.String("rules", event.RulesFired),
	)

	copied := *event
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		e.logger.Warn("Emitter stopped, fall alert not dispatched", zap.String("event_id", event.ID))
		e.metrics.IncrementNotifyDropped()
		return nil
	}
	select {
	case e.queue <- &copied:
	default:
		e.logger.Warn("Notification queue full, fall alert not dispatched",
			zap.String("event_id", event.ID),
			zap.Int("queue_size", cap(e.queue)),
		)
		e.metrics.IncrementNotifyDropped()
	}
	return nil
}

func (e *Emitter) run(ctx context.Context) {
	defer e.wg.Done()
	for event := range e.queue {
		e.deliver(ctx, event)
	}
}

// deliver 通知成功后 DETECTED → NOTIFIED；失败仅记录，事件保持 DETECTED
func (e *Emitter) deliver(parent context.Context, event *models.FallEvent) {
	ctx, cancel := context.WithTimeout(parent, deliveryTimeout)
	defer cancel()

	if e.notifier != nil {
		if err := e.notifier.SendFallAlert(ctx, event); err != nil {
			e.metrics.IncrementNotify(false)
			if errors.Is(err, notify.ErrNoChannel) {
				e.logger.Debug("No notification channel, event stays DETECTED", zap.String("event_id", event.ID))
			} else {
				e.logger.Error("Failed to send fall alert",
					zap.String("event_id", event.ID),
					zap.String("user_id", event.UserID),
					zap.Error(err),
				)
			}
		} else {
			e.metrics.IncrementNotify(true)
			e.markNotified(ctx, event)
		}
	}

	if e.broadcaster != nil {
		if err := e.broadcaster.BroadcastFallAlert(ctx, event.UserID, event.FallType, string(event.Severity), event.ConfidenceScore); err != nil {
			e.metrics.IncrementBroadcastFailed()
			e.logger.Warn("Failed to broadcast fall alert",
				zap.String("event_id", event.ID),
				zap.String("user_id", event.UserID),
				zap.Error(err),
			)
		}
	}
}

func (e *Emitter) markNotified(ctx context.Context, event *models.FallEvent) {
	err := e.repo.UpdateStatus(ctx, event.ID, models.StatusDetected, models.StatusNotified)
	switch {
	case err == nil:
		e.logger.Info("Fall event notified", zap.String("event_id", event.ID))
	case errors.Is(err, repository.ErrStatusConflict):
		// 反馈先于通知到达，保留终态
		e.logger.Debug("Fall event already left DETECTED", zap.String("event_id", event.ID))
	default:
		e.logger.Error("Failed to mark fall event notified",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
