package consumer

import (
	"sync"
	"time"
)

// 错误分类
const (
	errorTypeParse     = "parse"
	errorTypeInvalid   = "invalid"
	errorTypeQueueFull = "queue_full"
	errorTypeSubmit    = "submit_failed"
)

// Metrics 接入层监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesSucceeded int64 // 成功提交的消息数
	MessagesFailed    int64 // 处理失败的消息数
	FramesSubmitted   int64 // 成功提交的帧数
	FallsDetected     int64 // 提交结果为 DETECTED 的消息数

	// 错误分类统计
	ErrorsParse     int64 // JSON 解析错误
	ErrorsInvalid   int64 // 缺少 user_id / session_id / frames
	ErrorsQueueFull int64 // 会话队列已满
	ErrorsSubmit    int64 // 其他提交错误

	// 性能指标
	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// NewMetrics 创建指标
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		FramesSubmitted:     m.FramesSubmitted,
		FallsDetected:       m.FallsDetected,
		ErrorsParse:         m.ErrorsParse,
		ErrorsInvalid:       m.ErrorsInvalid,
		ErrorsQueueFull:     m.ErrorsQueueFull,
		ErrorsSubmit:        m.ErrorsSubmit,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

// IncrementSucceeded 增加成功计数
func (m *Metrics) IncrementSucceeded(frames int, detected bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.FramesSubmitted += int64(frames)
	if detected {
		m.FallsDetected++
	}
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
	switch errorType {
	case errorTypeParse:
		m.ErrorsParse++
	case errorTypeInvalid:
		m.ErrorsInvalid++
	case errorTypeQueueFull:
		m.ErrorsQueueFull++
	case errorTypeSubmit:
		m.ErrorsSubmit++
	}
}
