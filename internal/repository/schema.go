package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pose_sessions (
		id           UUID PRIMARY KEY,
		session_id   VARCHAR(128) NOT NULL UNIQUE,
		user_id      VARCHAR(128) NOT NULL,
		start_time   TIMESTAMPTZ NOT NULL,
		end_time     TIMESTAMPTZ,
		status       VARCHAR(16) NOT NULL,
		total_frames BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS fall_events (
		id               UUID PRIMARY KEY,
		user_id          VARCHAR(128) NOT NULL,
		session_id       VARCHAR(128) NOT NULL,
		detected_at      TIMESTAMPTZ NOT NULL,
		severity         VARCHAR(16) NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		body_angle       DOUBLE PRECISION NOT NULL,
		fall_type        VARCHAR(64) NOT NULL,
		status           VARCHAR(32) NOT NULL,
		false_positive   BOOLEAN NOT NULL DEFAULT FALSE,
		user_feedback    TEXT,
		rules_fired      VARCHAR(128) NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fall_events_user_detected ON fall_events (user_id, detected_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pose_sessions (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL UNIQUE,
		user_id      TEXT NOT NULL,
		start_time   TIMESTAMP NOT NULL,
		end_time     TIMESTAMP,
		status       TEXT NOT NULL,
		total_frames INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS fall_events (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		session_id       TEXT NOT NULL,
		detected_at      TIMESTAMP NOT NULL,
		severity         TEXT NOT NULL,
		confidence_score REAL NOT NULL,
		body_angle       REAL NOT NULL,
		fall_type        TEXT NOT NULL,
		status           TEXT NOT NULL,
		false_positive   BOOLEAN NOT NULL DEFAULT 0,
		user_feedback    TEXT,
		rules_fired      TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fall_events_user_detected ON fall_events (user_id, detected_at)`,
}

// Migrate 创建 pose_sessions / fall_events 表（幂等）
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := postgresSchema
	if dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
