package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertCache 将用户最近一次告警写入 Redis（带 TTL），供轮询型前端读取
type AlertCache struct {
	client    *redis.Client
	keyPrefix string // 如 "pose:alert:latest:"
	ttl       time.Duration
	logger    *zap.Logger
}

// NewAlertCache 创建告警缓存
func NewAlertCache(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *AlertCache {
	return &AlertCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *AlertCache) key(userID string) string {
	return c.keyPrefix + userID
}

// BroadcastFallAlert 覆盖写入最近告警
func (c *AlertCache) BroadcastFallAlert(ctx context.Context, userID, fallType, severityLabel string, confidenceScore float64) error {
	data, err := json.Marshal(newAlertMessage(userID, fallType, severityLabel, confidenceScore))
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache latest alert: %w", err)
	}
	c.logger.Debug("Latest alert cached", zap.String("user_id", userID))
	return nil
}

// Latest 读取用户最近告警，不存在或已过期返回 nil
func (c *AlertCache) Latest(ctx context.Context, userID string) (*AlertMessage, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest alert: %w", err)
	}
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest alert: %w", err)
	}
	return &msg, nil
}
