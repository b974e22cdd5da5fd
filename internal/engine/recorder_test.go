package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mivius/automaton/internal/model"
)

func TestExecutionRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("Assigns ID And Creation Time", func(t *testing.T) {
		env := newInvokerEnv(t, &stubExecutor{})
		recorder := NewExecutionRecorder(env.logs, env.logger)

		entry := &model.ExecutionLogEntry{
			AutomationID:    "auto-1",
			Success:         true,
			Message:         "done",
			ExecutionTimeMs: 2500,
		}

		logID, err := recorder.Record(ctx, entry)
		require.NoError(t, err)
		require.NotEmpty(t, logID)
		assert.Equal(t, entry.ID, logID)
		assert.WithinDuration(t, time.Now(), entry.CreatedAt, 5*time.Second)

		stored, err := env.logs.Get(ctx, logID)
		require.NoError(t, err)
		assert.Equal(t, "auto-1", stored.AutomationID)
		assert.Equal(t, "done", stored.Message)
		assert.Equal(t, int64(2500), stored.ExecutionTimeMs)
	})

	t.Run("Keeps Provided ID", func(t *testing.T) {
		env := newInvokerEnv(t, &stubExecutor{})
		recorder := NewExecutionRecorder(env.logs, env.logger)

		logID, err := recorder.Record(ctx, &model.ExecutionLogEntry{
			ID:      "fixed-id",
			Success: false,
			Message: "nothing to do",
		})
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", logID)
	})

	t.Run("Wraps Store Failures", func(t *testing.T) {
		env := newInvokerEnv(t, &stubExecutor{})
		recorder := NewExecutionRecorder(&failingLogStore{ExecutionLogStore: env.logs}, env.logger)

		_, err := recorder.Record(ctx, &model.ExecutionLogEntry{Success: true, Message: "ok"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record execution")
	})
}
