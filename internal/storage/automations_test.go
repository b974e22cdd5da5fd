package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(zap.NewNop(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(n int) *int { return &n }

func newAutomation(name string, schedule model.ScheduleKind) *model.Automation {
	now := time.Now().UTC()
	return &model.Automation{
		ID:        uuid.New().String(),
		Name:      name,
		Prompt:    "Summarize the project status",
		Schedule:  schedule,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAutomationStore(t *testing.T) {
	store, err := NewSQLiteAutomationStore(zap.NewNop(), openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Create And Get", func(t *testing.T) {
		automation := newAutomation("weekly-report", model.ScheduleWeekly)
		automation.Rules = "Only include open issues"
		automation.DayOfWeek = intPtr(3)

		err := store.Create(ctx, automation)
		require.NoError(t, err)

		stored, err := store.Get(ctx, automation.ID)
		require.NoError(t, err)
		assert.Equal(t, automation.ID, stored.ID)
		assert.Equal(t, automation.Name, stored.Name)
		assert.Equal(t, automation.Prompt, stored.Prompt)
		assert.Equal(t, automation.Rules, stored.Rules)
		assert.Equal(t, model.ScheduleWeekly, stored.Schedule)
		require.NotNil(t, stored.DayOfWeek)
		assert.Equal(t, 3, *stored.DayOfWeek)
		assert.Nil(t, stored.DayOfMonth)
		assert.True(t, stored.Enabled)
		assert.Nil(t, stored.LastRunAt)
		assert.Empty(t, stored.LastRunStatus)
		assert.WithinDuration(t, automation.CreatedAt, stored.CreatedAt, time.Second)
	})

	t.Run("Get Missing Returns Not Found", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		automation := newAutomation("daily-digest", model.ScheduleDaily)
		require.NoError(t, store.Create(ctx, automation))

		automation.Name = "daily-digest-v2"
		automation.Prompt = "Summarize yesterday's activity"
		automation.Enabled = false
		automation.UpdatedAt = time.Now().UTC()
		require.NoError(t, store.Update(ctx, automation))

		stored, err := store.Get(ctx, automation.ID)
		require.NoError(t, err)
		assert.Equal(t, "daily-digest-v2", stored.Name)
		assert.Equal(t, "Summarize yesterday's activity", stored.Prompt)
		assert.False(t, stored.Enabled)
	})

	t.Run("Update Missing Returns Not Found", func(t *testing.T) {
		automation := newAutomation("ghost", model.ScheduleDaily)
		err := store.Update(ctx, automation)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update Run State", func(t *testing.T) {
		automation := newAutomation("monthly-cleanup", model.ScheduleMonthly)
		automation.DayOfMonth = intPtr(1)
		require.NoError(t, store.Create(ctx, automation))

		ranAt := time.Now().UTC()
		logID := uuid.New().String()
		err := store.UpdateRunState(ctx, automation.ID, model.RunState{
			LastRunAt:      ranAt,
			LastRunStatus:  model.RunStatusSuccess,
			LastRunSummary: "Archived 4 stale tasks",
			LastRunLogID:   logID,
		})
		require.NoError(t, err)

		stored, err := store.Get(ctx, automation.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastRunAt)
		assert.WithinDuration(t, ranAt, *stored.LastRunAt, time.Second)
		assert.Equal(t, model.RunStatusSuccess, stored.LastRunStatus)
		assert.Equal(t, "Archived 4 stale tasks", stored.LastRunSummary)
		assert.Equal(t, logID, stored.LastRunLogID)

		// Definition fields are untouched
		assert.Equal(t, "monthly-cleanup", stored.Name)
		assert.True(t, stored.Enabled)
	})

	t.Run("Update Run State Missing Returns Not Found", func(t *testing.T) {
		err := store.UpdateRunState(ctx, uuid.New().String(), model.RunState{
			LastRunAt:     time.Now().UTC(),
			LastRunStatus: model.RunStatusError,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		automation := newAutomation("short-lived", model.ScheduleDaily)
		require.NoError(t, store.Create(ctx, automation))

		require.NoError(t, store.Delete(ctx, automation.ID))

		_, err := store.Get(ctx, automation.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		err = store.Delete(ctx, automation.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAutomationStoreList(t *testing.T) {
	store, err := NewSQLiteAutomationStore(zap.NewNop(), openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

	names := []string{"oldest", "middle", "newest"}
	for i, name := range names {
		automation := newAutomation(name, model.ScheduleDaily)
		automation.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		automation.UpdatedAt = automation.CreatedAt
		require.NoError(t, store.Create(ctx, automation))
	}

	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	// Newest first
	assert.Equal(t, "newest", listed[0].Name)
	assert.Equal(t, "middle", listed[1].Name)
	assert.Equal(t, "oldest", listed[2].Name)
}

func TestAutomationStoreListDue(t *testing.T) {
	store, err := NewSQLiteAutomationStore(zap.NewNop(), openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	// Wednesday, March 12 2025
	now := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

	dueDaily := newAutomation("due-daily", model.ScheduleDaily)
	require.NoError(t, store.Create(ctx, dueDaily))

	ranToday := newAutomation("ran-today", model.ScheduleDaily)
	require.NoError(t, store.Create(ctx, ranToday))
	require.NoError(t, store.UpdateRunState(ctx, ranToday.ID, model.RunState{
		LastRunAt:     now.Add(-2 * time.Hour),
		LastRunStatus: model.RunStatusSuccess,
	}))

	disabled := newAutomation("disabled", model.ScheduleDaily)
	disabled.Enabled = false
	require.NoError(t, store.Create(ctx, disabled))

	dueWeekly := newAutomation("due-weekly", model.ScheduleWeekly)
	dueWeekly.DayOfWeek = intPtr(3)
	require.NoError(t, store.Create(ctx, dueWeekly))

	wrongDay := newAutomation("wrong-day", model.ScheduleMonthly)
	wrongDay.DayOfMonth = intPtr(25)
	require.NoError(t, store.Create(ctx, wrongDay))

	due, err := store.ListDue(ctx, now)
	require.NoError(t, err)

	names := make([]string, 0, len(due))
	for _, automation := range due {
		names = append(names, automation.Name)
	}
	assert.ElementsMatch(t, []string{"due-daily", "due-weekly"}, names)
}
