package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wisefido-pose/internal/models"
)

// MemoryFallEventsRepo 未配置数据库时（回放、开发）使用的内存事件仓库
type MemoryFallEventsRepo struct {
	mu     sync.RWMutex
	events map[string]models.FallEvent // eventID -> event
}

// NewMemoryFallEventsRepo 创建内存事件仓库
func NewMemoryFallEventsRepo() *MemoryFallEventsRepo {
	return &MemoryFallEventsRepo{
		events: map[string]models.FallEvent{},
	}
}

func (r *MemoryFallEventsRepo) Save(_ context.Context, event *models.FallEvent) error {
	if event == nil || event.ID == "" || event.UserID == "" {
		return fmt.Errorf("event id and user_id are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; ok {
		return fmt.Errorf("fall event %s already exists", event.ID)
	}
	r.events[event.ID] = cloneEvent(event)
	return nil
}

func (r *MemoryFallEventsRepo) FindRecentByUser(_ context.Context, userID string, since time.Time) ([]*models.FallEvent, error) {
	return r.filter(func(e *models.FallEvent) bool {
		return e.UserID == userID && e.DetectedAt.After(since)
	}, 0), nil
}

func (r *MemoryFallEventsRepo) FindByID(_ context.Context, eventID string) (*models.FallEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, fmt.Errorf("fall event %s: %w", eventID, ErrNotFound)
	}
	out := cloneEvent(&e)
	return &out, nil
}

func (r *MemoryFallEventsRepo) ListByUser(_ context.Context, userID string, since time.Time, limit int) ([]*models.FallEvent, error) {
	return r.filter(func(e *models.FallEvent) bool {
		return e.UserID == userID && !e.DetectedAt.Before(since)
	}, normalizeLimit(limit)), nil
}

func (r *MemoryFallEventsRepo) UpdateStatus(_ context.Context, eventID string, from, to models.EventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok || e.Status != from {
		return fmt.Errorf("fall event %s: %w", eventID, ErrStatusConflict)
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	r.events[eventID] = e
	return nil
}

func (r *MemoryFallEventsRepo) ApplyFeedback(_ context.Context, eventID string, to models.EventStatus, falsePositive bool, comment *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok || e.Status.IsTerminal() {
		return fmt.Errorf("fall event %s: %w", eventID, ErrStatusConflict)
	}
	e.Status = to
	e.FalsePositive = falsePositive
	e.UserFeedback = nil
	if comment != nil {
		c := *comment
		e.UserFeedback = &c
	}
	e.UpdatedAt = time.Now().UTC()
	r.events[eventID] = e
	return nil
}

// filter 按 detected_at 降序返回匹配事件，limit <= 0 表示不限制
func (r *MemoryFallEventsRepo) filter(match func(*models.FallEvent) bool, limit int) []*models.FallEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.FallEvent
	for _, e := range r.events {
		if match(&e) {
			c := cloneEvent(&e)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneEvent(e *models.FallEvent) models.FallEvent {
	c := *e
	if e.UserFeedback != nil {
		fb := *e.UserFeedback
		c.UserFeedback = &fb
	}
	return c
}

// MemoryPoseSessionsRepo 内存会话仓库
type MemoryPoseSessionsRepo struct {
	mu       sync.RWMutex
	sessions map[string]models.PoseSession // sessionID -> session
}

// NewMemoryPoseSessionsRepo 创建内存会话仓库
func NewMemoryPoseSessionsRepo() *MemoryPoseSessionsRepo {
	return &MemoryPoseSessionsRepo{
		sessions: map[string]models.PoseSession{},
	}
}

func (r *MemoryPoseSessionsRepo) Create(_ context.Context, session *models.PoseSession) error {
	if session == nil || session.SessionID == "" || session.UserID == "" {
		return fmt.Errorf("session_id and user_id are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.SessionID]; !ok {
		r.sessions[session.SessionID] = *session
	}
	return nil
}

func (r *MemoryPoseSessionsRepo) End(_ context.Context, sessionID string, endTime time.Time, totalFrames int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("pose session %s: %w", sessionID, ErrNotFound)
	}
	s.EndTime = &endTime
	s.Status = models.SessionEnded
	s.TotalFrames = totalFrames
	r.sessions[sessionID] = s
	return nil
}

func (r *MemoryPoseSessionsRepo) FindBySessionID(_ context.Context, sessionID string) (*models.PoseSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("pose session %s: %w", sessionID, ErrNotFound)
	}
	return &s, nil
}
