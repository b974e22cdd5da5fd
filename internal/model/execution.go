package model

import "time"

// TriggerSource identifies what initiated an execution
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
)

// ExecutionLogEntry represents one immutable record of an execution
// attempt. Entries are only ever appended; AutomationID is empty for ad-hoc
// executions and may reference a since-deleted automation.
type ExecutionLogEntry struct {
	ID              string     `json:"id"`
	AutomationID    string     `json:"automation_id,omitempty"`
	Success         bool       `json:"success"`
	Message         string     `json:"message"`
	Operations      Operations `json:"operations,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ExecutionResult represents what an invocation returns to its caller
type ExecutionResult struct {
	Success         bool       `json:"success"`
	Message         string     `json:"message"`
	Operations      Operations `json:"operations,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	LogID           string     `json:"log_id,omitempty"`
}

// TriggerEvent is published by the scheduler when an automation comes due
type TriggerEvent struct {
	AutomationID string    `json:"automation_id"`
	PeriodStart  time.Time `json:"period_start"`
	FiredAt      time.Time `json:"fired_at"`
}

// ExecutionEvent is published after each invocation completes
type ExecutionEvent struct {
	AutomationID    string        `json:"automation_id,omitempty"`
	LogID           string        `json:"log_id"`
	Success         bool          `json:"success"`
	Message         string        `json:"message"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	Trigger         TriggerSource `json:"trigger"`
	CompletedAt     time.Time     `json:"completed_at"`
}
