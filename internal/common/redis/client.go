package redis

import (
	"context"
	"fmt"
	"time"

	"wisefido-pose/internal/common/config"

	"github.com/go-redis/redis/v8"
)

// connectTimeout 建连与启动探活的超时
const connectTimeout = 5 * time.Second

// Connect 创建客户端并探活；探活失败时关闭客户端
// 告警流、告警缓存、拒绝帧审计与帧 Stream 共用同一个连接池
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
