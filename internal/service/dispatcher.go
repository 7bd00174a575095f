package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wisefido-pose/internal/buffer"
	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/geometry"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/repository"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull 用户所属 worker 的任务队列已满
	ErrQueueFull = errors.New("session queue full")
	// ErrStopped 调度器已停止
	ErrStopped = errors.New("dispatcher stopped")
	// ErrSessionUserMismatch 会话已属于其他用户
	ErrSessionUserMismatch = errors.New("session belongs to another user")
)

// DispatcherConfig 会话调度参数
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	SessionTTL     time.Duration
	EvictInterval  time.Duration
	BufferCapacity int
}

// SubmitResult 一次提交（单帧或批量）的处理结果
type SubmitResult struct {
	Outcome     evaluator.Outcome `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	Accepted    int               `json:"accepted"`
	Rejected    int               `json:"rejected"`
	Event       *models.FallEvent `json:"event,omitempty"`
	DuplicateOf string            `json:"duplicate_of,omitempty"`
}

type jobKind int

const (
	jobFrames jobKind = iota
	jobStart
	jobEnd
)

type job struct {
	ctx       context.Context
	kind      jobKind
	userID    string
	sessionID string
	frames    []models.RawFrame
	reply     chan jobReply
}

type jobReply struct {
	result  SubmitResult
	session *models.PoseSession
	err     error
}

// Dispatcher 按 user_id 哈希分片到固定 worker，每个 worker 独占自己用户的全部会话状态。
// 同一用户的去重查询与事件落库因此在同一 goroutine 内串行执行。
type Dispatcher struct {
	cfg      DispatcherConfig
	analyzer *geometry.Analyzer
	detector *evaluator.Detector
	emitter  *Emitter
	sessions repository.PoseSessionsRepository
	auditor  Auditor // 可为 nil
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time

	workers []*worker
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

type worker struct {
	id       int
	d        *Dispatcher
	jobs     chan job
	sessions map[string]*sessionState
}

// NewDispatcher 创建调度器
func NewDispatcher(
	cfg DispatcherConfig,
	analyzer *geometry.Analyzer,
	detector *evaluator.Detector,
	emitter *Emitter,
	sessions repository.PoseSessionsRepository,
	auditor Auditor,
	metrics *Metrics,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.EvictInterval <= 0 {
		cfg.EvictInterval = 30 * time.Second
	}
	if cfg.BufferCapacity < detector.Params().MinFrames {
		cfg.BufferCapacity = detector.Params().MinFrames
	}
	d := &Dispatcher{
		cfg:      cfg,
		analyzer: analyzer,
		detector: detector,
		emitter:  emitter,
		sessions: sessions,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	d.workers = make([]*worker, cfg.Workers)
	for i := range d.workers {
		d.workers[i] = &worker{
			id:       i,
			d:        d,
			jobs:     make(chan job, cfg.QueueSize),
			sessions: make(map[string]*sessionState),
		}
	}
	return d
}

// Start 启动全部 worker
func (d *Dispatcher) Start(ctx context.Context) {
	for _, w := range d.workers {
		d.wg.Add(1)
		go w.run(ctx)
	}
	d.logger.Info("Session dispatcher started",
		zap.Int("workers", len(d.workers)),
		zap.Int("queue_size", d.cfg.QueueSize),
		zap.Duration("session_ttl", d.cfg.SessionTTL),
	)
}

// Stop 停止 worker；仍在内存中的会话被结束并落库
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) shard(userID string) *worker {
	return d.workers[xxhash.Sum64String(userID)%uint64(len(d.workers))]
}

// submit 投递到用户所属 worker 并等待结果
func (d *Dispatcher) submit(ctx context.Context, j job) (jobReply, error) {
	j.ctx = ctx
	j.reply = make(chan jobReply, 1)
	w := d.shard(j.userID)

	select {
	case <-d.done:
		return jobReply{}, ErrStopped
	default:
	}
	select {
	case w.jobs <- j:
	default:
		return jobReply{}, fmt.Errorf("%w: worker %d", ErrQueueFull, w.id)
	}

	select {
	case r := <-j.reply:
		return r, r.err
	case <-ctx.Done():
		return jobReply{}, ctx.Err()
	case <-d.done:
		return jobReply{}, ErrStopped
	}
}

func (w *worker) run(ctx context.Context) {
	defer w.d.wg.Done()
	ticker := time.NewTicker(w.d.cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.d.done:
			w.shutdown()
			return
		case j := <-w.jobs:
			j.reply <- w.handle(j)
		case <-ticker.C:
			w.evictIdle()
		}
	}
}

func (w *worker) handle(j job) jobReply {
	switch j.kind {
	case jobStart:
		st, err := w.session(j.ctx, j.userID, j.sessionID)
		if err != nil {
			return jobReply{err: err}
		}
		session, err := w.d.sessions.FindBySessionID(j.ctx, st.sessionID)
		return jobReply{session: session, err: err}
	case jobEnd:
		session, err := w.endSession(j.ctx, j.sessionID, false)
		return jobReply{session: session, err: err}
	default:
		return w.processFrames(j)
	}
}

// session 返回会话状态，首次出现时创建并落库（ACTIVE）
func (w *worker) session(ctx context.Context, userID, sessionID string) (*sessionState, error) {
	if st, ok := w.sessions[sessionID]; ok {
		if st.userID != userID {
			return nil, fmt.Errorf("%w: session %s", ErrSessionUserMismatch, sessionID)
		}
		return st, nil
	}

	now := w.d.now()
	if err := w.d.sessions.Create(ctx, &models.PoseSession{
		SessionID: sessionID,
		UserID:    userID,
		StartTime: now,
		Status:    models.SessionActive,
	}); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	// 会话已存在时 Create 不覆盖；其他用户的会话可能位于另一个 worker，以库中记录为准
	stored, err := w.d.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if stored.UserID != userID {
		return nil, fmt.Errorf("%w: session %s", ErrSessionUserMismatch, sessionID)
	}
	st := newSessionState(userID, sessionID, w.d.cfg.BufferCapacity, w.d.detector.Params(), now)
	w.sessions[sessionID] = st
	w.d.metrics.SessionOpened()
	w.d.logger.Info("Pose session started",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("worker", w.id),
	)
	return st, nil
}

// processFrames 按时间排序后逐帧入缓冲区，整批只检测一次
func (w *worker) processFrames(j job) jobReply {
	start := time.Now()
	d := w.d
	result := SubmitResult{}

	if j.userID == "" || j.sessionID == "" {
		result.Outcome = evaluator.OutcomeRejected
		result.Rejected = len(j.frames)
		result.Reason = "user_id and session_id are required"
		d.metrics.RecordBatch(len(j.frames), 0, len(j.frames), result.Outcome, time.Since(start))
		return jobReply{result: result}
	}

	st, err := w.session(j.ctx, j.userID, j.sessionID)
	if err != nil {
		return jobReply{err: err}
	}
	st.lastSeen = d.now()

	frames := append([]models.RawFrame(nil), j.frames...)
	sort.SliceStable(frames, func(a, b int) bool {
		return frames[a].Timestamp.Before(frames[b].Timestamp)
	})

	for _, raw := range frames {
		if err := geometry.Validate(j.userID, j.sessionID, raw); err != nil {
			result.Rejected++
			result.Reason = err.Error()
			w.reject(j.ctx, st, raw.Timestamp, err)
			continue
		}
		var prev *models.PoseFrame
		if last, ok := st.ring.Last(); ok {
			prev = &last
		}
		frame := d.analyzer.Analyze(j.userID, j.sessionID, raw, prev)
		if err := st.ring.Append(frame); err != nil {
			result.Rejected++
			result.Reason = err.Error()
			w.reject(j.ctx, st, raw.Timestamp, err)
			continue
		}
		st.tracker.Observe(frame)
		result.Accepted++
	}
	st.frames += int64(result.Accepted)

	if result.Accepted == 0 {
		if result.Rejected > 0 {
			result.Outcome = evaluator.OutcomeRejected
		} else {
			result.Outcome = evaluator.OutcomeInsufficientData
		}
		d.metrics.RecordBatch(len(frames), 0, result.Rejected, result.Outcome, time.Since(start))
		return jobReply{result: result}
	}

	res := d.detector.DetectFall(j.ctx, j.userID, j.sessionID, st.ring, st.tracker)
	result.Outcome = res.Outcome
	if res.Reason != "" {
		result.Reason = res.Reason
	}
	switch res.Outcome {
	case evaluator.OutcomeDetected:
		if err := d.emitter.Emit(j.ctx, res.Event); err != nil {
			// 本次检测结果丢失，但允许同一过程的后续帧重新检测
			st.tracker.ClearHandled()
			result.Outcome = evaluator.OutcomePersistFailed
			result.Reason = err.Error()
			d.logger.Error("Failed to emit fall event",
				zap.String("user_id", j.userID),
				zap.String("session_id", j.sessionID),
				zap.Error(err),
			)
		} else {
			result.Event = res.Event
		}
	case evaluator.OutcomeDuplicate:
		result.DuplicateOf = res.Duplicate.ID
		d.logger.Info("Fall candidate deduplicated",
			zap.String("user_id", j.userID),
			zap.String("session_id", j.sessionID),
			zap.String("event_id", res.Duplicate.ID),
		)
	case evaluator.OutcomeUnreliableSignal:
		d.logger.Debug("Unreliable pose signal",
			zap.String("user_id", j.userID),
			zap.String("session_id", j.sessionID),
			zap.String("reason", res.Reason),
		)
	}

	d.metrics.RecordBatch(len(frames), result.Accepted, result.Rejected, result.Outcome, time.Since(start))
	return jobReply{result: result}
}

func (w *worker) reject(ctx context.Context, st *sessionState, ts time.Time, cause error) {
	d := w.d
	reason := "malformed"
	if errors.Is(cause, buffer.ErrOutOfOrder) {
		reason = "out_of_order"
	}
	d.logger.Warn("Pose frame rejected",
		zap.String("user_id", st.userID),
		zap.String("session_id", st.sessionID),
		zap.Time("timestamp", ts),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	if d.auditor == nil {
		return
	}
	rec := RejectedFrame{
		UserID:     st.userID,
		SessionID:  st.sessionID,
		Timestamp:  ts,
		Reason:     cause.Error(),
		RejectedAt: d.now().UTC(),
	}
	if err := d.auditor.RecordRejected(ctx, rec); err != nil {
		d.logger.Warn("Failed to audit rejected frame",
			zap.String("session_id", st.sessionID),
			zap.Error(err),
		)
	}
}

// endSession 结束会话、落库并释放缓冲区
func (w *worker) endSession(ctx context.Context, sessionID string, evicted bool) (*models.PoseSession, error) {
	d := w.d
	var total int64
	st, inMemory := w.sessions[sessionID]
	if inMemory {
		total = st.frames
		delete(w.sessions, sessionID)
		d.metrics.SessionClosed(evicted)
	} else {
		existing, err := d.sessions.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to end session: %w", err)
		}
		total = existing.TotalFrames
	}

	if err := d.sessions.End(ctx, sessionID, d.now(), total); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	d.logger.Info("Pose session ended",
		zap.String("session_id", sessionID),
		zap.Int64("total_frames", total),
		zap.Bool("evicted", evicted),
	)
	return d.sessions.FindBySessionID(ctx, sessionID)
}

func (w *worker) evictIdle() {
	ttl := w.d.cfg.SessionTTL
	if ttl <= 0 {
		return
	}
	now := w.d.now()
	for id, st := range w.sessions {
		if now.Sub(st.lastSeen) < ttl {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := w.endSession(ctx, id, true); err != nil {
			w.d.logger.Error("Failed to end idle session",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (w *worker) shutdown() {
	for id := range w.sessions {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := w.endSession(ctx, id, false); err != nil {
			w.d.logger.Error("Failed to end session on shutdown",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// ActiveSessions 当前内存中的会话数
func (d *Dispatcher) ActiveSessions() int64 {
	return d.metrics.GetSnapshot().ActiveSessions
}
