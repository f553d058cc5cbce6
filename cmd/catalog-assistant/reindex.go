package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reindexConcurrency int
	reindexTimeout     time.Duration
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Copy catalog rows into Elasticsearch for name suggestions",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().IntVar(&reindexConcurrency, "concurrency", 4, "Concurrent index requests")
	reindexCmd.Flags().DurationVar(&reindexTimeout, "timeout", 2*time.Minute, "Overall timeout")
}

func runReindex(cmd *cobra.Command, args []string) error {
	if !cfg.Database.Elasticsearch.Enabled {
		return errors.New("database.elasticsearch.enabled is false; nothing to reindex into")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), reindexTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, zapLog, log)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	result := a.executor.ReadAll(ctx)
	if !result.Success {
		return fmt.Errorf("reading catalog: %s", result.ErrorMessage)
	}

	n, err := a.suggester.Reindex(ctx, result.Rows, reindexConcurrency)
	if err != nil {
		return fmt.Errorf("reindex stopped after %d of %d rows: %w", n, len(result.Rows), err)
	}

	zapLog.Info("Reindex complete",
		zap.Int("indexed", n),
		zap.String("index", cfg.Database.Elasticsearch.Index),
	)
	return nil
}
