package main

import (
	"context"

	"wisefido-pose/internal/config"
	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/geometry"
	"wisefido-pose/internal/notify"
	"wisefido-pose/internal/realtime"
	"wisefido-pose/internal/service"

	"go.uber.org/zap"
)

// pipeline 检测链路：调度器 + 发布器 + 对外服务
type pipeline struct {
	metrics    *service.Metrics
	emitter    *service.Emitter
	dispatcher *service.Dispatcher
	pose       *service.PoseService
	events     *service.FallEventService
}

// newPipeline 组装检测链路；notifier / broadcaster / auditor 均可为 nil
func newPipeline(
	cfg *config.Config,
	st *store,
	notifier notify.Notifier,
	broadcaster realtime.Broadcaster,
	auditor service.Auditor,
	logger *zap.Logger,
) *pipeline {
	metrics := service.NewMetrics()
	emitter := service.NewEmitter(st.events, notifier, broadcaster, cfg.Notify.QueueSize, cfg.Notify.Workers, metrics, logger)
	detector := evaluator.NewDetector(cfg.Detection, st.events, logger)
	dispatcher := service.NewDispatcher(
		service.DispatcherConfig{
			Workers:        cfg.Pose.Workers,
			QueueSize:      cfg.Pose.QueueSize,
			SessionTTL:     cfg.Pose.SessionTTL,
			EvictInterval:  cfg.Pose.EvictInterval,
			BufferCapacity: cfg.Pose.BufferCapacity,
		},
		geometry.NewAnalyzer(cfg.Geometry),
		detector,
		emitter,
		st.sessions,
		auditor,
		metrics,
		logger,
	)
	return &pipeline{
		metrics:    metrics,
		emitter:    emitter,
		dispatcher: dispatcher,
		pose:       service.NewPoseService(dispatcher, st.sessions, metrics, logger),
		events:     service.NewFallEventService(st.events, logger),
	}
}

func (p *pipeline) Start(ctx context.Context) {
	p.emitter.Start(ctx)
	p.dispatcher.Start(ctx)
}

// Stop 先停调度器（结束会话），再排空通知队列
func (p *pipeline) Stop() {
	p.dispatcher.Stop()
	p.emitter.Stop()
}
