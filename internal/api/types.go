// Package api provides the REST surface for managing automations,
// triggering executions, and browsing the execution log.
package api

import (
	"time"

	"github.com/mivius/automaton/internal/model"
)

// CreateAutomationRequest represents the request body for creating an automation
type CreateAutomationRequest struct {
	Name       string `json:"name"                   validate:"required,min=1,max=200"`
	Prompt     string `json:"prompt"                 validate:"required,min=1"`
	Rules      string `json:"rules,omitempty"`
	Schedule   string `json:"schedule"               validate:"required,oneof=daily weekly monthly quarterly"`
	DayOfWeek  *int   `json:"day_of_week,omitempty"  validate:"omitempty,min=0,max=6"`
	DayOfMonth *int   `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	Enabled    *bool  `json:"enabled,omitempty"`
}

// UpdateAutomationRequest represents the request body for partially updating
// an automation. All fields are optional; absent fields keep their current
// values. Run state is never writable through the API.
type UpdateAutomationRequest struct {
	Name       *string `json:"name,omitempty"         validate:"omitempty,min=1,max=200"`
	Prompt     *string `json:"prompt,omitempty"       validate:"omitempty,min=1"`
	Rules      *string `json:"rules,omitempty"`
	Schedule   *string `json:"schedule,omitempty"     validate:"omitempty,oneof=daily weekly monthly quarterly"`
	DayOfWeek  *int    `json:"day_of_week,omitempty"  validate:"omitempty,min=0,max=6"`
	DayOfMonth *int    `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// ExecutionsResponse represents one page of execution log entries
type ExecutionsResponse struct {
	Executions []*model.ExecutionLogEntry `json:"executions"`
	Total      int                        `json:"total"`
	Limit      int                        `json:"limit"`
	Offset     int                        `json:"offset"`
}

// LimitStatusResponse reports a caller's current rate limit window without
// consuming quota. ResetAt is absent when the caller has no open window.
type LimitStatusResponse struct {
	Identifier string     `json:"identifier"`
	Allowed    bool       `json:"allowed"`
	Remaining  int        `json:"remaining"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}
