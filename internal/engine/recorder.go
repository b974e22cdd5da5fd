package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/storage"
)

// ExecutionRecorder appends entries to the immutable execution log
type ExecutionRecorder struct {
	logger *zap.Logger
	logs   storage.ExecutionLogStore
}

// NewExecutionRecorder creates a new execution recorder
func NewExecutionRecorder(logs storage.ExecutionLogStore, logger *zap.Logger) *ExecutionRecorder {
	return &ExecutionRecorder{
		logger: logger.Named("execution-recorder"),
		logs:   logs,
	}
}

// Record persists entry, assigning its ID and creation time when absent,
// and returns the stored entry's ID. Entries are never updated or removed
// once written.
func (r *ExecutionRecorder) Record(ctx context.Context, entry *model.ExecutionLogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := r.logs.Append(ctx, entry); err != nil {
		r.logger.Error("Failed to append execution log entry",
			zap.String("log_id", entry.ID),
			zap.String("automation_id", entry.AutomationID),
			zap.Error(err))
		return "", fmt.Errorf("failed to record execution: %w", err)
	}

	r.logger.Info("Execution recorded",
		zap.String("log_id", entry.ID),
		zap.String("automation_id", entry.AutomationID),
		zap.Bool("success", entry.Success),
		zap.Int64("execution_time_ms", entry.ExecutionTimeMs))
	return entry.ID, nil
}
