package consumer

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqttcommon "wisefido-pose/internal/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（由 common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer MQTT 帧消费者
// 主题格式 pose/{session_id}/frames，payload 为 models.FrameBatch JSON
type MQTTConsumer struct {
	subscriber Subscriber
	topic      string
	qos        byte
	proc       *processor
	logger     *zap.Logger
	metrics    *Metrics

	submitTimeout time.Duration
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(subscriber Subscriber, topic string, qos byte, submitter FrameSubmitter, logger *zap.Logger) *MQTTConsumer {
	metrics := NewMetrics()
	return &MQTTConsumer{
		subscriber:    subscriber,
		topic:         topic,
		qos:           qos,
		proc:          &processor{submitter: submitter, metrics: metrics, logger: logger},
		logger:        logger,
		metrics:       metrics,
		submitTimeout: 10 * time.Second,
	}
}

// Metrics 消费指标
func (c *MQTTConsumer) Metrics() *Metrics { return c.metrics }

// Start 订阅主题，阻塞直到 ctx 取消后取消订阅
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(c.topic, c.qos, func(topic string, payload []byte) error {
		return c.HandleMessage(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("failed to start mqtt consumer: %w", err)
	}
	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.topic),
		zap.Uint8("qos", c.qos),
	)

	go reportMetrics(ctx, "mqtt", c.metrics, 60*time.Second, c.logger)

	<-ctx.Done()
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Warn("Failed to unsubscribe", zap.String("topic", c.topic), zap.Error(err))
	}
	return nil
}

// HandleMessage 处理一条 MQTT 消息
func (c *MQTTConsumer) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()
	return c.proc.handle(ctx, payload, SessionIDFromTopic(topic))
}

// SessionIDFromTopic 从 pose/{session_id}/frames 提取 session_id，格式不符返回空
func SessionIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "pose" || parts[2] != "frames" {
		return ""
	}
	return parts[1]
}
