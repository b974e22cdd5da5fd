package model

import (
	"time"
)

// ScheduleKind represents the recurrence cadence of an automation
type ScheduleKind string

const (
	ScheduleDaily     ScheduleKind = "daily"
	ScheduleWeekly    ScheduleKind = "weekly"
	ScheduleMonthly   ScheduleKind = "monthly"
	ScheduleQuarterly ScheduleKind = "quarterly"
)

// RunStatus represents the outcome of an automation's most recent run
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Automation represents a recurring instruction executed against the
// AI command executor
type Automation struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Prompt     string       `json:"prompt"`
	Rules      string       `json:"rules,omitempty"`
	Schedule   ScheduleKind `json:"schedule"`
	DayOfWeek  *int         `json:"day_of_week,omitempty"`
	DayOfMonth *int         `json:"day_of_month,omitempty"`
	Enabled    bool         `json:"enabled"`

	// Run state, mutated only by the engine
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  RunStatus  `json:"last_run_status,omitempty"`
	LastRunSummary string     `json:"last_run_summary,omitempty"`
	LastRunLogID   string     `json:"last_run_log_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunState represents the outcome fields written back after an invocation
type RunState struct {
	LastRunAt      time.Time `json:"last_run_at"`
	LastRunStatus  RunStatus `json:"last_run_status"`
	LastRunSummary string    `json:"last_run_summary"`
	LastRunLogID   string    `json:"last_run_log_id"`
}

// PeriodStart returns the start of the recurrence period containing now.
// Weeks start Monday 00:00; quarters start January, April, July, October.
func (a *Automation) PeriodStart(now time.Time) time.Time {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	switch a.Schedule {
	case ScheduleDaily:
		return midnight
	case ScheduleWeekly:
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case ScheduleMonthly:
		return time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	case ScheduleQuarterly:
		qm := time.Month(((int(month)-1)/3)*3 + 1)
		return time.Date(year, qm, 1, 0, 0, 0, 0, now.Location())
	default:
		return midnight
	}
}

// DueAt reports whether the automation should run at now: it must be
// enabled, the calendar condition of its schedule must match, and it must
// not have run yet in the current period.
func (a *Automation) DueAt(now time.Time) bool {
	if !a.Enabled {
		return false
	}
	if !a.matchesCalendar(now) {
		return false
	}
	if a.LastRunAt != nil && !a.LastRunAt.Before(a.PeriodStart(now)) {
		return false
	}
	return true
}

func (a *Automation) matchesCalendar(now time.Time) bool {
	switch a.Schedule {
	case ScheduleDaily:
		return true
	case ScheduleWeekly:
		return a.DayOfWeek != nil && int(now.Weekday()) == *a.DayOfWeek
	case ScheduleMonthly:
		if a.DayOfMonth == nil {
			return false
		}
		// A day past the month's end rolls back to the last day,
		// so day_of_month=31 fires on April 30.
		day := *a.DayOfMonth
		if last := daysIn(now.Year(), now.Month()); day > last {
			day = last
		}
		return now.Day() == day
	case ScheduleQuarterly:
		switch now.Month() {
		case time.January, time.April, time.July, time.October:
			return now.Day() == 1
		}
		return false
	default:
		return false
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
