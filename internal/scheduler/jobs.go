package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/clock"
	"github.com/t77yq/duewatch/internal/model"
	"github.com/t77yq/duewatch/internal/storage"
)

// Evaluator rebuilds the alert feed
type Evaluator interface {
	Evaluate(ctx context.Context) (*model.FeedRun, error)
}

// EvaluateJob runs one feed evaluation
func EvaluateJob(evaluator Evaluator) JobFunc {
	return func(ctx context.Context) error {
		_, err := evaluator.Evaluate(ctx)
		return err
	}
}

// CleanupJob deletes feed runs generated more than retention ago
func CleanupJob(history storage.FeedHistoryStorage, clk clock.Clock, retention time.Duration, logger *zap.Logger) JobFunc {
	logger = logger.Named("cleanup")
	return func(ctx context.Context) error {
		cutoff := clk.Now().Add(-retention)
		deleted, err := history.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to clean feed history: %w", err)
		}
		logger.Debug("History cleaned", zap.Time("cutoff", cutoff), zap.Int64("deleted", deleted))
		return nil
	}
}
