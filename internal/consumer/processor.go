package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/service"

	"go.uber.org/zap"
)

// FrameSubmitter 帧提交接口（由 service.PoseService 实现）
type FrameSubmitter interface {
	SubmitFrames(ctx context.Context, userID, sessionID string, frames []models.RawFrame) (service.SubmitResult, error)
}

var errInvalidMessage = errors.New("invalid frame message")

// processor MQTT / Stream 共用的消息处理
type processor struct {
	submitter FrameSubmitter
	metrics   *Metrics
	logger    *zap.Logger
}

// handle 解析并提交一条消息；defaultSessionID 用于 payload 未携带 session_id 的情况
func (p *processor) handle(ctx context.Context, payload []byte, defaultSessionID string) error {
	startTime := time.Now()
	p.metrics.IncrementProcessed()

	var msg models.FrameBatch
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.metrics.IncrementFailed(errorTypeParse)
		return fmt.Errorf("failed to unmarshal frame message: %w", err)
	}
	if msg.SessionID == "" {
		msg.SessionID = defaultSessionID
	}
	frames := msg.RawFrames()
	if msg.UserID == "" || msg.SessionID == "" || len(frames) == 0 {
		p.metrics.IncrementFailed(errorTypeInvalid)
		return fmt.Errorf("%w: user_id, session_id and frames are required", errInvalidMessage)
	}

	result, err := p.submitter.SubmitFrames(ctx, msg.UserID, msg.SessionID, frames)
	if err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			p.metrics.IncrementFailed(errorTypeQueueFull)
		} else {
			p.metrics.IncrementFailed(errorTypeSubmit)
		}
		return fmt.Errorf("failed to submit frames for session %s: %w", msg.SessionID, err)
	}

	processingDuration := time.Since(startTime)
	p.metrics.IncrementSucceeded(result.Accepted, result.Outcome == evaluator.OutcomeDetected, processingDuration)

	p.logger.Debug("Frames submitted",
		zap.String("user_id", msg.UserID),
		zap.String("session_id", msg.SessionID),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("processing_time", processingDuration),
	)
	return nil
}

// reportMetrics 定期报告指标
func reportMetrics(ctx context.Context, source string, metrics *Metrics, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := metrics.GetSnapshot()

			var avgProcessingTime time.Duration
			if snapshot.MessagesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesSucceeded)
			}
			successRate := float64(0)
			if snapshot.MessagesProcessed > 0 {
				successRate = float64(snapshot.MessagesSucceeded) / float64(snapshot.MessagesProcessed) * 100
			}

			logger.Info("Metrics report",
				zap.String("source", source),
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_succeeded", snapshot.MessagesSucceeded),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("frames_submitted", snapshot.FramesSubmitted),
				zap.Int64("falls_detected", snapshot.FallsDetected),
				zap.Float64("success_rate", successRate),
				zap.Int64("errors_parse", snapshot.ErrorsParse),
				zap.Int64("errors_invalid", snapshot.ErrorsInvalid),
				zap.Int64("errors_queue_full", snapshot.ErrorsQueueFull),
				zap.Int64("errors_submit", snapshot.ErrorsSubmit),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", time.Since(snapshot.StartTime)),
			)
		}
	}
}
