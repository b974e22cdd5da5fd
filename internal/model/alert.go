package model

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityError    AlertSeverity = "error"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType represents the condition an alert rule watches for
type AlertType string

const (
	AlertTypeExecutionFailure AlertType = "execution_failure"
	AlertTypeRepeatedFailure  AlertType = "repeated_failure"
	AlertTypeSlowExecution    AlertType = "slow_execution"
)

// AlertRule defines a rule for generating alerts. Threshold is the
// consecutive-failure count for repeated_failure rules and the duration in
// milliseconds for slow_execution rules.
type AlertRule struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      AlertType     `json:"type"`
	Threshold float64       `json:"threshold,omitempty"`
	Severity  AlertSeverity `json:"severity"`
	Silenced  bool          `json:"silenced"`
	NotifyURL string        `json:"notify_url,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Alert represents an alert event
type Alert struct {
	ID           string                 `json:"id"`
	RuleID       string                 `json:"rule_id"`
	Type         AlertType              `json:"type"`
	Severity     AlertSeverity          `json:"severity"`
	Message      string                 `json:"message"`
	AutomationID string                 `json:"automation_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
