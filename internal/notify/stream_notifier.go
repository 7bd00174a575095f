package notify

import (
	"context"
	"fmt"

	rediscommon "wisefido-pose/internal/common/redis"
	"wisefido-pose/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamNotifier 将告警发布到 Redis Stream，由下游告警/推送服务消费
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamNotifier 创建 Redis Stream 通知器
func NewStreamNotifier(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// SendFallAlert 发布 FallAlert 消息
func (n *StreamNotifier) SendFallAlert(ctx context.Context, event *models.FallEvent) error {
	id, err := rediscommon.PublishJSONToStream(ctx, n.client, n.stream, models.NewFallAlert(event), n.maxLen)
	if err != nil {
		return fmt.Errorf("failed to publish fall alert to %s: %w", n.stream, err)
	}
	n.logger.Debug("Fall alert published",
		zap.String("stream", n.stream),
		zap.String("stream_id", id),
		zap.String("event_id", event.ID),
	)
	return nil
}
