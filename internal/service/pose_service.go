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

// ErrInvalidArgument 请求参数无效
var ErrInvalidArgument = errors.New("invalid argument")

// PoseService 姿态接入服务（会话生命周期 + 帧提交）
type PoseService struct {
	dispatcher *Dispatcher
	sessions   repository.PoseSessionsRepository
	metrics    *Metrics
	logger     *zap.Logger
}

// NewPoseService 创建姿态接入服务
func NewPoseService(dispatcher *Dispatcher, sessions repository.PoseSessionsRepository, metrics *Metrics, logger *zap.Logger) *PoseService {
	return &PoseService{
		dispatcher: dispatcher,
		sessions:   sessions,
		metrics:    metrics,
		logger:     logger,
	}
}

// StartSession 开始会话（已存在时直接返回）
func (s *PoseService) StartSession(ctx context.Context, userID, sessionID string) (*models.PoseSession, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: user_id and session_id are required", ErrInvalidArgument)
	}
	r, err := s.dispatcher.submit(ctx, job{kind: jobStart, userID: userID, sessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// SubmitFrame 提交单帧
func (s *PoseService) SubmitFrame(ctx context.Context, userID, sessionID string, timestamp time.Time, landmarks []models.Landmark) (SubmitResult, error) {
	return s.SubmitFrames(ctx, userID, sessionID, []models.RawFrame{{Timestamp: timestamp, Landmarks: landmarks}})
}

// SubmitFrames 批量提交：按时间顺序处理，批末检测一次
// 持久化/通知失败不会作为错误返回，只体现在 Outcome 中
func (s *PoseService) SubmitFrames(ctx context.Context, userID, sessionID string, frames []models.RawFrame) (SubmitResult, error) {
	if len(frames) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: no frames", ErrInvalidArgument)
	}
	if sessionID == "" {
		return SubmitResult{}, fmt.Errorf("%w: session_id is required", ErrInvalidArgument)
	}
	r, err := s.dispatcher.submit(ctx, job{kind: jobFrames, userID: userID, sessionID: sessionID, frames: frames})
	if err != nil {
		return SubmitResult{}, err
	}
	return r.result, nil
}

// EndSession 结束会话并释放缓冲区
func (s *PoseService) EndSession(ctx context.Context, sessionID string) (*models.PoseSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidArgument)
	}
	// 会话状态在其用户所属的 worker 上
	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	r, err := s.dispatcher.submit(ctx, job{kind: jobEnd, userID: session.UserID, sessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// GetSession 查询会话
func (s *PoseService) GetSession(ctx context.Context, sessionID string) (*models.PoseSession, error) {
	return s.sessions.FindBySessionID(ctx, sessionID)
}

// Metrics 指标快照
func (s *PoseService) Metrics() MetricsSnapshot {
	return s.metrics.GetSnapshot()
}
