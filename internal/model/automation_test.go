package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestAutomationPeriodStart(t *testing.T) {
	// Wednesday, March 12 2025
	now := time.Date(2025, time.March, 12, 15, 30, 0, 0, time.UTC)

	t.Run("Daily", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleDaily}
		assert.Equal(t, time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC), a.PeriodStart(now))
	})

	t.Run("Weekly Starts Monday", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleWeekly}
		assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), a.PeriodStart(now))
	})

	t.Run("Weekly Sunday Belongs To Same Week", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleWeekly}
		sunday := time.Date(2025, time.March, 16, 8, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), a.PeriodStart(sunday))
	})

	t.Run("Monthly", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleMonthly}
		assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), a.PeriodStart(now))
	})

	t.Run("Quarterly", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleQuarterly}
		mayDay := time.Date(2025, time.May, 20, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), a.PeriodStart(mayDay))
	})
}

func TestAutomationDueAt(t *testing.T) {
	wednesday := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

	t.Run("Disabled Never Due", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleDaily, Enabled: false}
		assert.False(t, a.DueAt(wednesday))
	})

	t.Run("Daily Once Per Day", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleDaily, Enabled: true}
		assert.True(t, a.DueAt(wednesday))

		ranToday := time.Date(2025, time.March, 12, 6, 0, 0, 0, time.UTC)
		a.LastRunAt = &ranToday
		assert.False(t, a.DueAt(wednesday))

		ranYesterday := time.Date(2025, time.March, 11, 23, 0, 0, 0, time.UTC)
		a.LastRunAt = &ranYesterday
		assert.True(t, a.DueAt(wednesday))
	})

	t.Run("Run At Period Boundary Suppresses", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleDaily, Enabled: true}
		midnight := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)
		a.LastRunAt = &midnight
		assert.False(t, a.DueAt(wednesday))
	})

	t.Run("Weekly Matches Day Of Week", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleWeekly, Enabled: true, DayOfWeek: intPtr(3)}
		assert.True(t, a.DueAt(wednesday))

		a.DayOfWeek = intPtr(4)
		assert.False(t, a.DueAt(wednesday))
	})

	t.Run("Weekly Once Per Week", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleWeekly, Enabled: true, DayOfWeek: intPtr(3)}

		// Manual run on Monday of the same ISO week
		ranMonday := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
		a.LastRunAt = &ranMonday
		assert.False(t, a.DueAt(wednesday))

		// Run in the previous week does not suppress
		ranLastWeek := time.Date(2025, time.March, 9, 9, 0, 0, 0, time.UTC)
		a.LastRunAt = &ranLastWeek
		assert.True(t, a.DueAt(wednesday))
	})

	t.Run("Weekly Without Day Never Due", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleWeekly, Enabled: true}
		assert.False(t, a.DueAt(wednesday))
	})

	t.Run("Monthly Day Overflow Rolls To Last Day", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleMonthly, Enabled: true, DayOfMonth: intPtr(31)}

		april30 := time.Date(2025, time.April, 30, 9, 0, 0, 0, time.UTC)
		assert.True(t, a.DueAt(april30))

		april29 := time.Date(2025, time.April, 29, 9, 0, 0, 0, time.UTC)
		assert.False(t, a.DueAt(april29))

		feb28 := time.Date(2025, time.February, 28, 9, 0, 0, 0, time.UTC)
		assert.True(t, a.DueAt(feb28))

		march31 := time.Date(2025, time.March, 31, 9, 0, 0, 0, time.UTC)
		assert.True(t, a.DueAt(march31))
	})

	t.Run("Monthly Once Per Month", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleMonthly, Enabled: true, DayOfMonth: intPtr(31)}
		ranApril1 := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)
		a.LastRunAt = &ranApril1

		april30 := time.Date(2025, time.April, 30, 9, 0, 0, 0, time.UTC)
		assert.False(t, a.DueAt(april30))
	})

	t.Run("Quarterly First Day Of Quarter", func(t *testing.T) {
		a := &Automation{Schedule: ScheduleQuarterly, Enabled: true}

		assert.True(t, a.DueAt(time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)))
		assert.True(t, a.DueAt(time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)))
		assert.False(t, a.DueAt(time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)))
		assert.False(t, a.DueAt(time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)))

		ranThisQuarter := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)
		a.LastRunAt = &ranThisQuarter
		assert.True(t, a.DueAt(time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)))
	})
}

func TestOperationsEncoding(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		ops := Operations{
			{Type: "create_task", Summary: "Created follow-up task", Target: "task-42", Status: OperationApplied},
			{Type: "custom_kind", Details: []byte(`{"nested":{"value":1}}`)},
		}

		data, err := ops.Encode()
		assert.NoError(t, err)

		decoded, err := DecodeOperations(data)
		assert.NoError(t, err)
		assert.Equal(t, ops, decoded)
	})

	t.Run("Unknown Details Preserved Verbatim", func(t *testing.T) {
		ops := Operations{{Type: "future_kind", Details: []byte(`{"a":[1,2,3],"b":"x"}`)}}

		data, err := ops.Encode()
		assert.NoError(t, err)

		decoded, err := DecodeOperations(data)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"a":[1,2,3],"b":"x"}`, string(decoded[0].Details))
	})

	t.Run("Empty Encodes To Nil", func(t *testing.T) {
		data, err := Operations(nil).Encode()
		assert.NoError(t, err)
		assert.Nil(t, data)

		decoded, err := DecodeOperations(nil)
		assert.NoError(t, err)
		assert.Nil(t, decoded)
	})
}
