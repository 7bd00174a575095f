package service

import (
	"sync"
	"time"

	"wisefido-pose/internal/evaluator"
)

// Metrics 检测链路监控指标
type Metrics struct {
	mu sync.RWMutex

	// 帧处理统计
	FramesReceived int64 // 收到的帧总数
	FramesAccepted int64 // 进入缓冲区的帧数
	FramesRejected int64 // 畸形 / 乱序被拒绝的帧数
	Batches        int64 // 提交批次数（单帧提交也计一次）

	// 检测结果统计
	Outcomes map[evaluator.Outcome]int64

	// 通知统计
	NotifySucceeded int64
	NotifyFailed    int64
	NotifyDropped   int64 // 通知队列已满被丢弃
	BroadcastFailed int64

	// 会话
	ActiveSessions  int64
	SessionsEvicted int64

	// 性能指标
	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// NewMetrics 创建指标
func NewMetrics() *Metrics {
	m := &Metrics{
		Outcomes:  make(map[evaluator.Outcome]int64, len(evaluator.Outcomes)),
		StartTime: time.Now(),
	}
	for _, o := range evaluator.Outcomes {
		m.Outcomes[o] = 0
	}
	return m
}

// MetricsSnapshot 指标快照（可直接 JSON 输出）
type MetricsSnapshot struct {
	FramesReceived      int64                       `json:"frames_received"`
	FramesAccepted      int64                       `json:"frames_accepted"`
	FramesRejected      int64                       `json:"frames_rejected"`
	Batches             int64                       `json:"batches"`
	Outcomes            map[evaluator.Outcome]int64 `json:"outcomes"`
	NotifySucceeded     int64                       `json:"notify_succeeded"`
	NotifyFailed        int64                       `json:"notify_failed"`
	NotifyDropped       int64                       `json:"notify_dropped"`
	BroadcastFailed     int64                       `json:"broadcast_failed"`
	ActiveSessions      int64                       `json:"active_sessions"`
	SessionsEvicted     int64                       `json:"sessions_evicted"`
	AvgProcessingTimeMs float64                     `json:"avg_processing_time_ms"`
	LastProcessTime     time.Time                   `json:"last_process_time"`
	Uptime              string                      `json:"uptime"`
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outcomes := make(map[evaluator.Outcome]int64, len(m.Outcomes))
	for k, v := range m.Outcomes {
		outcomes[k] = v
	}
	var avg float64
	if m.Batches > 0 {
		avg = float64(m.TotalProcessingTime.Microseconds()) / float64(m.Batches) / 1000
	}
	return MetricsSnapshot{
		FramesReceived:      m.FramesReceived,
		FramesAccepted:      m.FramesAccepted,
		FramesRejected:      m.FramesRejected,
		Batches:             m.Batches,
		Outcomes:            outcomes,
		NotifySucceeded:     m.NotifySucceeded,
		NotifyFailed:        m.NotifyFailed,
		NotifyDropped:       m.NotifyDropped,
		BroadcastFailed:     m.BroadcastFailed,
		ActiveSessions:      m.ActiveSessions,
		SessionsEvicted:     m.SessionsEvicted,
		AvgProcessingTimeMs: avg,
		LastProcessTime:     m.LastProcessTime,
		Uptime:              time.Since(m.StartTime).Truncate(time.Second).String(),
	}
}

// RecordBatch 记录一次批处理
func (m *Metrics) RecordBatch(received, accepted, rejected int, outcome evaluator.Outcome, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches++
	m.FramesReceived += int64(received)
	m.FramesAccepted += int64(accepted)
	m.FramesRejected += int64(rejected)
	if outcome != "" {
		m.Outcomes[outcome]++
	}
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementNotify 记录通知结果
func (m *Metrics) IncrementNotify(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.NotifySucceeded++
	} else {
		m.NotifyFailed++
	}
}

// IncrementNotifyDropped 通知队列已满
func (m *Metrics) IncrementNotifyDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyDropped++
}

// IncrementBroadcastFailed 实时推送失败
func (m *Metrics) IncrementBroadcastFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BroadcastFailed++
}

// SessionOpened 会话数 +1
func (m *Metrics) SessionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ActiveSessions++
}

// SessionClosed 会话数 -1，evicted 表示因空闲超时结束
func (m *Metrics) SessionClosed(evicted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ActiveSessions--
	if evicted {
		m.SessionsEvicted++
	}
}
