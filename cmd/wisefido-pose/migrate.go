package main

import (
	"context"
	"fmt"
	"time"

	"wisefido-pose/internal/common/database"
	"wisefido-pose/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create pose_sessions and fall_events tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.Driver == "memory" {
				return fmt.Errorf("nothing to migrate for the memory driver")
			}
			db, err := database.Open(&cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close(db)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := repository.Migrate(ctx, db, repository.DialectFor(cfg.Database.Driver)); err != nil {
				return err
			}
			logger.Info("Schema migrated", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
