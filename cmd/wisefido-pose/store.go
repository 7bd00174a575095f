package main

import (
	"context"
	"database/sql"
	"fmt"

	commonconfig "wisefido-pose/internal/common/config"
	"wisefido-pose/internal/common/database"
	"wisefido-pose/internal/repository"

	"go.uber.org/zap"
)

// store 事件与会话仓库
type store struct {
	events   repository.FallEventsRepository
	sessions repository.PoseSessionsRepository
	db       *sql.DB
}

func (s *store) Close() error {
	return database.Close(s.db)
}

// openStore 按 Driver 创建仓库：memory 不落盘，sqlite 启动时自动建表
func openStore(ctx context.Context, cfg *commonconfig.DatabaseConfig, logger *zap.Logger) (*store, error) {
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory storage, fall events are not persisted across restarts")
		return &store{
			events:   repository.NewMemoryFallEventsRepo(),
			sessions: repository.NewMemoryPoseSessionsRepo(),
		}, nil
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	dialect := repository.DialectFor(cfg.Driver)
	if cfg.Driver == "sqlite" {
		if err := repository.Migrate(ctx, db, dialect); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}
	return &store{
		events:   repository.NewSQLFallEventsRepository(db, dialect, logger),
		sessions: repository.NewSQLPoseSessionsRepository(db, dialect, logger),
		db:       db,
	}, nil
}
