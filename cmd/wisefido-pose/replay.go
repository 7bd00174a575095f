package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"wisefido-pose/internal/config"
	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/posegen"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type replayOptions struct {
	file      string
	scenario  string
	userID    string
	sessionID string
	batch     int
	sqlite    string
}

func newReplayCmd() *cobra.Command {
	opts := replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a recorded or built-in pose sequence through the detection pipeline",
		Example: `  wisefido-pose replay --scenario classic-fall
  wisefido-pose replay --file frames.json --batch 30 --sqlite replay.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.file == "") == (opts.scenario == "") {
				return fmt.Errorf("exactly one of --file or --scenario is required")
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			frames, err := loadReplayFrames(opts)
			if err != nil {
				return err
			}
			_, err = runReplay(cmd.Context(), cfg, frames, opts, cmd.OutOrStdout(), logger)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "JSON file: array of frames or {user_id, session_id, frames}")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "built-in scenario: classic-fall, sit-down, exercise, chair-fall")
	cmd.Flags().StringVar(&opts.userID, "user", "replay-user", "user id")
	cmd.Flags().StringVar(&opts.sessionID, "session", "replay-session", "session id")
	cmd.Flags().IntVar(&opts.batch, "batch", 0, "frames per submission (0 submits frame by frame)")
	cmd.Flags().StringVar(&opts.sqlite, "sqlite", "", "sqlite file for events (default in-memory)")
	return cmd
}

// loadReplayFrames 读取帧序列；文件中的 user_id / session_id 优先于命令行
func loadReplayFrames(opts replayOptions) ([]models.RawFrame, error) {
	if opts.scenario != "" {
		frames := posegen.Scenario(opts.scenario, time.Now().UTC().Truncate(time.Second))
		if frames == nil {
			return nil, fmt.Errorf("unknown scenario %q", opts.scenario)
		}
		return frames, nil
	}
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	return parseReplayFrames(data)
}

func parseReplayFrames(data []byte) ([]models.RawFrame, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var batch models.FrameBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse replay file: %w", err)
		}
		return batch.RawFrames(), nil
	}
	var frames []models.RawFrame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("failed to parse replay file: %w", err)
	}
	return frames, nil
}

type replaySummary struct {
	Frames   int                       `json:"frames"`
	Outcomes map[evaluator.Outcome]int `json:"outcomes"`
	Events   []*models.FallEvent       `json:"events"`
}

// runReplay 使用内存或 sqlite 存储回放，逐次输出非常规结果，最后输出汇总 JSON
func runReplay(ctx context.Context, cfg *config.Config, frames []models.RawFrame, opts replayOptions, out io.Writer, logger *zap.Logger) (*replaySummary, error) {
	dbCfg := cfg.Database
	dbCfg.Driver = "memory"
	if opts.sqlite != "" {
		dbCfg.Driver = "sqlite"
		dbCfg.SQLitePath = opts.sqlite
	}
	st, err := openStore(ctx, &dbCfg, logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	p := newPipeline(cfg, st, nil, nil, nil, logger)
	p.Start(ctx)

	batch := opts.batch
	if batch <= 0 {
		batch = 1
	}
	summary := &replaySummary{Frames: len(frames), Outcomes: map[evaluator.Outcome]int{}}
	for start := 0; start < len(frames); start += batch {
		end := min(start+batch, len(frames))
		res, err := p.pose.SubmitFrames(ctx, opts.userID, opts.sessionID, frames[start:end])
		if err != nil {
			p.Stop()
			return nil, err
		}
		summary.Outcomes[res.Outcome]++
		switch res.Outcome {
		case evaluator.OutcomeNegative, evaluator.OutcomeInsufficientData:
		default:
			fmt.Fprintf(out, "frame %d-%d  %-18s %s\n", start, end-1, res.Outcome, res.Reason)
		}
	}
	if _, err := p.pose.EndSession(ctx, opts.sessionID); err != nil {
		logger.Warn("Failed to end replay session", zap.Error(err))
	}
	p.Stop()

	events, err := p.events.ListFallEvents(ctx, opts.userID, time.Time{}, 0)
	if err != nil {
		return nil, err
	}
	summary.Events = events

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return nil, err
	}
	return summary, nil
}
