package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	commonmqtt "wisefido-pose/internal/common/mqtt"
	rediscommon "wisefido-pose/internal/common/redis"
	"wisefido-pose/internal/config"
	"wisefido-pose/internal/consumer"
	httpapi "wisefido-pose/internal/http"
	"wisefido-pose/internal/notify"
	"wisefido-pose/internal/realtime"
	"wisefido-pose/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fall detection service (HTTP, MQTT and Redis stream ingestion)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// 1. 存储
	st, err := openStore(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. Redis（告警流 / 告警缓存 / 拒绝帧审计 / Stream 接入）
	var redisClient *redis.Client
	if cfg.Notify.RedisEnabled || cfg.Pose.Ingest.StreamEnabled {
		redisClient, err = rediscommon.Connect(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	// 3. 通知与实时推送
	var channels []notify.Notifier
	hub := realtime.NewHub(logger)
	defer hub.Close()
	broadcasters := realtime.MultiBroadcaster{hub}
	var auditor service.Auditor
	if cfg.Notify.RedisEnabled {
		channels = append(channels, notify.NewStreamNotifier(redisClient, cfg.Notify.AlertStream, cfg.Notify.AlertStreamMax, logger))
		broadcasters = append(broadcasters, realtime.NewAlertCache(redisClient, cfg.Notify.AlertCachePrefix, cfg.Notify.AlertCacheTTL, logger))
		auditor = service.NewRedisAuditor(redisClient, cfg.Notify.AuditStream, cfg.Notify.AuditStreamMax)
	}
	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout, logger))
	}
	notifier := notify.NewMultiNotifier(channels...)
	if notifier.Len() == 0 {
		logger.Warn("No notification channel configured, fall events will stay DETECTED")
	}

	// 4. 检测链路
	// 独立于信号的 context：关闭时先结束会话、排空通知队列
	p := newPipeline(cfg, st, notifier, broadcasters, auditor, logger)
	p.Start(context.Background())
	defer p.Stop()

	errChan := make(chan error, 3)

	// 5. 接入：MQTT / Redis Stream
	if cfg.Pose.Ingest.MQTTEnabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect()
		mqttConsumer := consumer.NewMQTTConsumer(mqttClient, cfg.Pose.Ingest.MQTTTopic, cfg.MQTT.QoS, p.pose, logger)
		go func() {
			if err := mqttConsumer.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}
	if cfg.Pose.Ingest.StreamEnabled {
		streamConsumer := consumer.NewStreamConsumer(consumer.StreamConfig{
			Stream:        cfg.Pose.Ingest.InputStream,
			ConsumerGroup: cfg.Pose.Ingest.ConsumerGroup,
			ConsumerName:  cfg.Pose.Ingest.ConsumerName,
			BatchSize:     cfg.Pose.Ingest.BatchSize,
		}, redisClient, p.pose, logger)
		go func() {
			if err := streamConsumer.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	// 6. HTTP
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(httpapi.NewPoseHandler(p.pose, logger), httpapi.NewFallEventHandler(p.events, logger), hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Service error", zap.Error(err))
		cancel()
		shutdownHTTP(server, logger)
		return err
	case <-ctx.Done():
	}

	cancel()
	shutdownHTTP(server, logger)
	logger.Info("Pose service stopped")
	return nil
}

func shutdownHTTP(server *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
}
