package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	rediscommon "wisefido-pose/internal/common/redis"
	"wisefido-pose/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConfig Redis Streams 接入配置
type StreamConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	Block         time.Duration // XREADGROUP 阻塞时长
}

// StreamConsumer Redis Streams 帧消费者
// 消息格式：{"data": "<models.FrameBatch JSON>"}
type StreamConsumer struct {
	cfg         StreamConfig
	redisClient *redis.Client
	proc        *processor
	logger      *zap.Logger
	metrics     *Metrics

	metricsInterval time.Duration

	// 上一轮因队列满留下未 ACK 的消息，下一轮先重读本消费者的待处理消息
	pending bool
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(cfg StreamConfig, redisClient *redis.Client, submitter FrameSubmitter, logger *zap.Logger) *StreamConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	metrics := NewMetrics()
	return &StreamConsumer{
		cfg:             cfg,
		redisClient:     redisClient,
		proc:            &processor{submitter: submitter, metrics: metrics, logger: logger},
		logger:          logger,
		metrics:         metrics,
		metricsInterval: 60 * time.Second,
	}
}

// Metrics 消费指标
func (c *StreamConsumer) Metrics() *Metrics { return c.metrics }

// Start 启动消费者，阻塞直到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context) error {
	// 创建消费者组
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.cfg.Stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.cfg.ConsumerGroup),
		zap.String("consumer_name", c.cfg.ConsumerName),
		zap.String("stream", c.cfg.Stream),
	)

	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go reportMetrics(metricsCtx, "redis_stream", c.metrics, c.metricsInterval, c.logger)

	backoffDuration := time.Second // 初始退避时间
	maxBackoff := 30 * time.Second // 最大退避时间

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeStream(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, service.ErrQueueFull) {
					c.logger.Warn("Stream consumer throttled by full session queue",
						zap.Error(err),
						zap.Duration("backoff", backoffDuration),
					)
				} else {
					c.logger.Error("Failed to consume stream",
						zap.Error(err),
						zap.Duration("backoff", backoffDuration),
					)
				}

				// 指数退避
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeStream 读取并处理一批消息
// 处理完的消息都会 ACK（包括无法解析的消息），避免毒消息反复投递；
// 遇到队列满时停止本批，该消息及其后的消息保持未 ACK，退避后按原顺序重读
func (c *StreamConsumer) consumeStream(ctx context.Context) error {
	var (
		messages []rediscommon.StreamMessage
		err      error
	)
	if c.pending {
		messages, err = rediscommon.ReadPendingFromStream(ctx, c.redisClient,
			c.cfg.Stream, c.cfg.ConsumerGroup, c.cfg.ConsumerName, c.cfg.BatchSize)
		if err == nil && len(messages) == 0 {
			c.pending = false
			return nil
		}
	} else {
		messages, err = rediscommon.ReadFromStream(ctx, c.redisClient,
			c.cfg.Stream, c.cfg.ConsumerGroup, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.Block)
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	ids := make([]string, 0, len(messages))
	var throttled error
	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			if errors.Is(err, service.ErrQueueFull) {
				throttled = fmt.Errorf("message %s left pending: %w", msg.ID, err)
				c.pending = true
				break
			}
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
		ids = append(ids, msg.ID)
	}

	if err := rediscommon.Ack(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup, ids...); err != nil {
		return fmt.Errorf("failed to ack messages: %w", err)
	}
	return throttled
}

// processMessage 处理单条消息
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	val, ok := msg.Values["data"]
	if !ok {
		c.metrics.IncrementProcessed()
		c.metrics.IncrementFailed(errorTypeParse)
		return fmt.Errorf("missing data field in message")
	}
	dataStr, ok := val.(string)
	if !ok {
		c.metrics.IncrementProcessed()
		c.metrics.IncrementFailed(errorTypeParse)
		return fmt.Errorf("invalid data format in message")
	}
	return c.proc.handle(ctx, []byte(dataStr), "")
}
