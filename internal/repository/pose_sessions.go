package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-pose/internal/models"

	"go.uber.org/zap"
)

// SQLPoseSessionsRepository 姿态会话仓库（postgres / sqlite）
type SQLPoseSessionsRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLPoseSessionsRepository 创建姿态会话仓库
func NewSQLPoseSessionsRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLPoseSessionsRepository {
	return &SQLPoseSessionsRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// Create 创建会话（session_id 冲突时忽略）
func (r *SQLPoseSessionsRepository) Create(ctx context.Context, session *models.PoseSession) error {
	if session == nil || session.SessionID == "" || session.UserID == "" {
		return fmt.Errorf("session_id and user_id are required")
	}

	query := r.dialect.Rebind(`
		INSERT INTO pose_sessions (
			id,
			session_id,
			user_id,
			start_time,
			status,
			total_frames
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING
	`)

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.SessionID,
		session.UserID,
		session.StartTime.UTC(),
		string(session.Status),
		session.TotalFrames,
	)
	if err != nil {
		return fmt.Errorf("failed to create pose session: %w", err)
	}
	return nil
}

// End 结束会话
func (r *SQLPoseSessionsRepository) End(ctx context.Context, sessionID string, endTime time.Time, totalFrames int64) error {
	query := r.dialect.Rebind(`
		UPDATE pose_sessions
		SET end_time = ?, status = ?, total_frames = ?
		WHERE session_id = ?
	`)

	result, err := r.db.ExecContext(ctx, query, endTime.UTC(), string(models.SessionEnded), totalFrames, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end pose session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pose session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// FindBySessionID 获取会话
func (r *SQLPoseSessionsRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.PoseSession, error) {
	query := r.dialect.Rebind(`
		SELECT id, session_id, user_id, start_time, end_time, status, total_frames
		FROM pose_sessions
		WHERE session_id = ?
	`)

	var s models.PoseSession
	var status string
	var endTime sql.NullTime
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.ID,
		&s.SessionID,
		&s.UserID,
		&s.StartTime,
		&endTime,
		&status,
		&s.TotalFrames,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pose session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pose session: %w", err)
	}

	s.Status = models.SessionStatus(status)
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	return &s, nil
}
