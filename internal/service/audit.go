package service

import (
	"context"
	"fmt"
	"time"

	rediscommon "wisefido-pose/internal/common/redis"

	"github.com/go-redis/redis/v8"
)

// RejectedFrame 被拒绝帧的审计记录（不含关键点数据）
type RejectedFrame struct {
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Auditor 拒绝帧审计
type Auditor interface {
	RecordRejected(ctx context.Context, rec RejectedFrame) error
}

// RedisAuditor 写入定长 Redis Stream（MAXLEN ~）
type RedisAuditor struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisAuditor 创建 Redis 审计
func NewRedisAuditor(client *redis.Client, stream string, maxLen int64) *RedisAuditor {
	return &RedisAuditor{client: client, stream: stream, maxLen: maxLen}
}

// RecordRejected 追加审计记录
func (a *RedisAuditor) RecordRejected(ctx context.Context, rec RejectedFrame) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, a.client, a.stream, rec, a.maxLen); err != nil {
		return fmt.Errorf("failed to record rejected frame: %w", err)
	}
	return nil
}
