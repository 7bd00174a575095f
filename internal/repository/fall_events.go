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

const fallEventColumns = `
			id,
			user_id,
			session_id,
			detected_at,
			severity,
			confidence_score,
			body_angle,
			fall_type,
			status,
			false_positive,
			user_feedback,
			rules_fired,
			created_at,
			updated_at`

// SQLFallEventsRepository 跌倒事件仓库（postgres / sqlite）
// 时间统一以 UTC 写入，sqlite 以文本存储时可按字典序比较
type SQLFallEventsRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLFallEventsRepository 创建跌倒事件仓库
func NewSQLFallEventsRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLFallEventsRepository {
	return &SQLFallEventsRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// Save 持久化新事件
func (r *SQLFallEventsRepository) Save(ctx context.Context, event *models.FallEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.ID == "" || event.UserID == "" {
		return fmt.Errorf("event id and user_id are required")
	}

	query := r.dialect.Rebind(`
		INSERT INTO fall_events (` + fallEventColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	var feedback sql.NullString
	if event.UserFeedback != nil {
		feedback = sql.NullString{String: *event.UserFeedback, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.SessionID,
		event.DetectedAt.UTC(),
		string(event.Severity),
		event.ConfidenceScore,
		event.BodyAngle,
		event.FallType,
		string(event.Status),
		event.FalsePositive,
		feedback,
		event.RulesFired,
		event.CreatedAt.UTC(),
		event.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save fall event: %w", err)
	}

	r.logger.Debug("Fall event saved",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
	)
	return nil
}

// FindRecentByUser 获取 detected_at > since 的事件
func (r *SQLFallEventsRepository) FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*models.FallEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := r.dialect.Rebind(`
		SELECT ` + fallEventColumns + `
		FROM fall_events
		WHERE user_id = ?
		  AND detected_at > ?
		ORDER BY detected_at DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query recent fall events: %w", err)
	}
	defer rows.Close()

	return scanFallEvents(rows)
}

// FindByID 获取单个事件
func (r *SQLFallEventsRepository) FindByID(ctx context.Context, eventID string) (*models.FallEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := r.dialect.Rebind(`
		SELECT ` + fallEventColumns + `
		FROM fall_events
		WHERE id = ?
	`)

	event, err := scanFallEvent(r.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fall event %s: %w", eventID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fall event: %w", err)
	}
	return event, nil
}

// ListByUser 查询用户事件（detected_at >= since），按 detected_at 降序
func (r *SQLFallEventsRepository) ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.FallEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := r.dialect.Rebind(`
		SELECT ` + fallEventColumns + `
		FROM fall_events
		WHERE user_id = ?
		  AND detected_at >= ?
		ORDER BY detected_at DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC(), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list fall events: %w", err)
	}
	defer rows.Close()

	return scanFallEvents(rows)
}

// UpdateStatus 条件更新状态
func (r *SQLFallEventsRepository) UpdateStatus(ctx context.Context, eventID string, from, to models.EventStatus) error {
	query := r.dialect.Rebind(`
		UPDATE fall_events
		SET status = ?, updated_at = ?
		WHERE id = ?
		  AND status = ?
	`)

	result, err := r.db.ExecContext(ctx, query, string(to), time.Now().UTC(), eventID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update fall event status: %w", err)
	}
	return expectOneRow(result, eventID)
}

// ApplyFeedback 写入反馈（仅非终态事件）
func (r *SQLFallEventsRepository) ApplyFeedback(ctx context.Context, eventID string, to models.EventStatus, falsePositive bool, comment *string) error {
	query := r.dialect.Rebind(`
		UPDATE fall_events
		SET status = ?, false_positive = ?, user_feedback = ?, updated_at = ?
		WHERE id = ?
		  AND status IN (?, ?)
	`)

	var feedback sql.NullString
	if comment != nil {
		feedback = sql.NullString{String: *comment, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		string(to),
		falsePositive,
		feedback,
		time.Now().UTC(),
		eventID,
		string(models.StatusDetected),
		string(models.StatusNotified),
	)
	if err != nil {
		return fmt.Errorf("failed to apply fall event feedback: %w", err)
	}
	return expectOneRow(result, eventID)
}

func expectOneRow(result sql.Result, eventID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fall event %s: %w", eventID, ErrStatusConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFallEvent(row rowScanner) (*models.FallEvent, error) {
	var event models.FallEvent
	var severity, status string
	var feedback sql.NullString

	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.SessionID,
		&event.DetectedAt,
		&severity,
		&event.ConfidenceScore,
		&event.BodyAngle,
		&event.FallType,
		&status,
		&event.FalsePositive,
		&feedback,
		&event.RulesFired,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Severity = models.Severity(severity)
	event.Status = models.EventStatus(status)
	if feedback.Valid {
		event.UserFeedback = &feedback.String
	}
	return &event, nil
}

func scanFallEvents(rows *sql.Rows) ([]*models.FallEvent, error) {
	var events []*models.FallEvent
	for rows.Next() {
		event, err := scanFallEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fall event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fall events: %w", err)
	}
	return events, nil
}
