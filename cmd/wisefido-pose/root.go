package main

import (
	"fmt"
	"os"

	"wisefido-pose/internal/common/logger"
	"wisefido-pose/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "wisefido-pose"

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Pose-stream fall detection service",
	Long: `Consumes 33-landmark pose frames per user session, detects falls in real time,
persists fall events and dispatches alerts to guardians.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newReplayCmd(), newMigrateCmd())
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}
