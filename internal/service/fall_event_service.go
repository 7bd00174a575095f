package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/repository"

	"go.uber.org/zap"
)

// ErrInvalidTransition 事件已是终态，不能再次反馈
var ErrInvalidTransition = errors.New("invalid status transition")

// FallEventService 跌倒事件查询与反馈
type FallEventService struct {
	repo   repository.FallEventsRepository
	logger *zap.Logger
}

// NewFallEventService 创建跌倒事件服务
func NewFallEventService(repo repository.FallEventsRepository, logger *zap.Logger) *FallEventService {
	return &FallEventService{repo: repo, logger: logger}
}

// GetFallEvent 获取单个事件，不存在时返回 repository.ErrNotFound
func (s *FallEventService) GetFallEvent(ctx context.Context, eventID string) (*models.FallEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event_id is required", ErrInvalidArgument)
	}
	return s.repo.FindByID(ctx, eventID)
}

// ListFallEvents 查询用户事件（detected_at 降序）
func (s *FallEventService) ListFallEvents(ctx context.Context, userID string, since time.Time, limit int) ([]*models.FallEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	return s.repo.ListByUser(ctx, userID, since, limit)
}

// SubmitFeedback 用户/监护人反馈
// isFalsePositive=true → FALSE_POSITIVE，否则 → RESOLVED；终态事件返回 ErrInvalidTransition
func (s *FallEventService) SubmitFeedback(ctx context.Context, eventID string, isFalsePositive bool, comment string) (*models.FallEvent, error) {
	event, err := s.GetFallEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: event %s is %s", ErrInvalidTransition, eventID, event.Status)
	}

	to := models.StatusResolved
	if isFalsePositive {
		to = models.StatusFalsePositive
	}
	var feedback *string
	if comment != "" {
		feedback = &comment
	}

	if err := s.repo.ApplyFeedback(ctx, eventID, to, isFalsePositive, feedback); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: event %s already closed", ErrInvalidTransition, eventID)
		}
		return nil, fmt.Errorf("failed to apply feedback: %w", err)
	}

	s.logger.Info("Fall event feedback applied",
		zap.String("event_id", eventID),
		zap.String("user_id", event.UserID),
		zap.String("status", string(to)),
		zap.Bool("false_positive", isFalsePositive),
	)
	return s.repo.FindByID(ctx, eventID)
}
