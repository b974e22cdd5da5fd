package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

func TestExecutionLogAppendAndGet(t *testing.T) {
	store, err := NewSQLiteExecutionLog(zap.NewNop(), openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Round Trip With Operations", func(t *testing.T) {
		entry := &model.ExecutionLogEntry{
			ID:           uuid.New().String(),
			AutomationID: uuid.New().String(),
			Success:      true,
			Message:      "Created 2 tasks",
			Operations: model.Operations{
				{Type: "create_task", Summary: "Created review task", Target: "task-1", Status: model.OperationApplied},
				{Type: "update_metric", Details: json.RawMessage(`{"metric":"velocity","value":12}`)},
			},
			ExecutionTimeMs: 1840,
			CreatedAt:       time.Now().UTC(),
		}

		require.NoError(t, store.Append(ctx, entry))

		stored, err := store.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, stored.ID)
		assert.Equal(t, entry.AutomationID, stored.AutomationID)
		assert.True(t, stored.Success)
		assert.Equal(t, entry.Message, stored.Message)
		assert.Equal(t, int64(1840), stored.ExecutionTimeMs)
		assert.WithinDuration(t, entry.CreatedAt, stored.CreatedAt, time.Second)

		// Operations come back as structured data, payloads verbatim
		require.Len(t, stored.Operations, 2)
		assert.Equal(t, "create_task", stored.Operations[0].Type)
		assert.Equal(t, model.OperationApplied, stored.Operations[0].Status)
		assert.JSONEq(t, `{"metric":"velocity","value":12}`, string(stored.Operations[1].Details))
	})

	t.Run("Ad Hoc Entry Without Automation", func(t *testing.T) {
		entry := &model.ExecutionLogEntry{
			ID:              uuid.New().String(),
			Success:         false,
			Message:         "executor request failed",
			ExecutionTimeMs: 95,
			CreatedAt:       time.Now().UTC(),
		}

		require.NoError(t, store.Append(ctx, entry))

		stored, err := store.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.AutomationID)
		assert.False(t, stored.Success)
		assert.Nil(t, stored.Operations)
	})

	t.Run("Get Missing Returns Not Found", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestExecutionLogList(t *testing.T) {
	store, err := NewSQLiteExecutionLog(zap.NewNop(), openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)
	automationID := uuid.New().String()

	for i := 0; i < 5; i++ {
		entry := &model.ExecutionLogEntry{
			ID:              uuid.New().String(),
			Success:         true,
			Message:         fmt.Sprintf("run %d", i),
			ExecutionTimeMs: 100,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 0 {
			entry.AutomationID = automationID
		}
		require.NoError(t, store.Append(ctx, entry))
	}

	t.Run("Newest First With Pagination", func(t *testing.T) {
		page, err := store.List(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "run 4", page[0].Message)
		assert.Equal(t, "run 3", page[1].Message)

		next, err := store.List(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, next, 2)
		assert.Equal(t, "run 2", next[0].Message)
		assert.Equal(t, "run 1", next[1].Message)
	})

	t.Run("By Automation", func(t *testing.T) {
		entries, err := store.ListByAutomation(ctx, automationID, 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "run 4", entries[0].Message)
		assert.Equal(t, "run 0", entries[2].Message)
	})

	t.Run("Count", func(t *testing.T) {
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	t.Run("Count By Automation", func(t *testing.T) {
		count, err := store.CountByAutomation(ctx, automationID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		none, err := store.CountByAutomation(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Zero(t, none)
	})
}
