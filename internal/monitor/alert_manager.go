// Package monitor watches the engine's event streams: it raises alerts on
// failing or slow executions and tracks the health of engine instances.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/service"
)

// NotificationChannel delivers a raised alert to an external destination
type NotificationChannel interface {
	Send(ctx context.Context, alert model.Alert) error
}

// AlertManager evaluates execution events against alert rules. Rules are
// held in memory; a repeated_failure rule counts consecutive failures per
// automation and the counter resets on the first success.
type AlertManager struct {
	logger   *zap.Logger
	events   *service.EventService
	rules    sync.Map
	channels []NotificationChannel
	webhooks sync.Map

	mu       sync.Mutex
	failures map[string]int
}

// NewAlertManager creates a new alert manager
func NewAlertManager(events *service.EventService, logger *zap.Logger) *AlertManager {
	return &AlertManager{
		logger:   logger.Named("alert-manager"),
		events:   events,
		failures: make(map[string]int),
	}
}

// AddChannel registers a notification channel. Channels must be registered
// before Start.
func (m *AlertManager) AddChannel(channel NotificationChannel) {
	m.channels = append(m.channels, channel)
}

// Start subscribes to execution results. The subscription ends when ctx is
// cancelled.
func (m *AlertManager) Start(ctx context.Context) error {
	err := m.events.SubscribeResults(ctx, func(event model.ExecutionEvent) {
		m.handleResult(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to execution results: %w", err)
	}

	m.logger.Info("Alert manager started")

	return nil
}

// GetRule returns a rule by ID
func (m *AlertManager) GetRule(id string) (*model.AlertRule, error) {
	value, ok := m.rules.Load(id)
	if !ok {
		return nil, fmt.Errorf("rule not found: %s", id)
	}
	return value.(*model.AlertRule), nil
}

// AddRule adds a new alert rule
func (m *AlertManager) AddRule(rule *model.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules.Store(rule.ID, rule)

	m.logger.Info("Alert rule added",
		zap.String("rule_id", rule.ID),
		zap.String("type", string(rule.Type)))

	return nil
}

// UpdateRule updates an existing alert rule
func (m *AlertManager) UpdateRule(rule *model.AlertRule) error {
	if _, ok := m.rules.Load(rule.ID); !ok {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	rule.UpdatedAt = time.Now()
	m.rules.Store(rule.ID, rule)
	return nil
}

// DeleteRule deletes an alert rule
func (m *AlertManager) DeleteRule(id string) error {
	if _, ok := m.rules.Load(id); !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	m.rules.Delete(id)
	return nil
}

// handleResult evaluates one execution event against every rule
func (m *AlertManager) handleResult(ctx context.Context, event model.ExecutionEvent) {
	streak := m.trackFailure(event)

	m.rules.Range(func(_, value interface{}) bool {
		rule := value.(*model.AlertRule)
		switch rule.Type {
		case model.AlertTypeExecutionFailure:
			if !event.Success {
				m.raise(ctx, rule, event, fmt.Sprintf("Execution failed: %s", event.Message))
			}
		case model.AlertTypeRepeatedFailure:
			// Fires once per streak, when the count reaches the threshold
			if !event.Success && streak == int(rule.Threshold) {
				m.raise(ctx, rule, event, fmt.Sprintf("%d consecutive failures", streak))
			}
		case model.AlertTypeSlowExecution:
			if float64(event.ExecutionTimeMs) > rule.Threshold {
				m.raise(ctx, rule, event, fmt.Sprintf("Execution took %dms", event.ExecutionTimeMs))
			}
		}
		return true
	})
}

// trackFailure maintains the per-automation consecutive failure count and
// returns the current streak. Ad-hoc executions carry no automation and are
// not counted.
func (m *AlertManager) trackFailure(event model.ExecutionEvent) int {
	if event.AutomationID == "" {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Success {
		delete(m.failures, event.AutomationID)
		return 0
	}

	m.failures[event.AutomationID]++
	return m.failures[event.AutomationID]
}

// raise publishes an alert and fans it out to the notification channels.
// Silenced rules record nothing.
func (m *AlertManager) raise(ctx context.Context, rule *model.AlertRule, event model.ExecutionEvent, message string) {
	if rule.Silenced {
		m.logger.Debug("Alert suppressed by silenced rule",
			zap.String("rule_id", rule.ID),
			zap.String("automation_id", event.AutomationID))
		return
	}

	alert := model.Alert{
		ID:           uuid.New().String(),
		RuleID:       rule.ID,
		Type:         rule.Type,
		Severity:     rule.Severity,
		Message:      message,
		AutomationID: event.AutomationID,
		Data: map[string]interface{}{
			"log_id":            event.LogID,
			"execution_time_ms": event.ExecutionTimeMs,
			"trigger":           string(event.Trigger),
		},
		CreatedAt: time.Now(),
	}

	if err := m.events.PublishAlert(ctx, alert); err != nil {
		m.logger.Error("Failed to publish alert", zap.Error(err))
	}

	for _, channel := range m.channels {
		if err := channel.Send(ctx, alert); err != nil {
			m.logger.Error("Failed to deliver alert notification",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}

	if rule.NotifyURL != "" {
		if err := m.webhookFor(rule.NotifyURL).Send(ctx, alert); err != nil {
			m.logger.Error("Failed to deliver rule webhook",
				zap.String("alert_id", alert.ID),
				zap.String("url", rule.NotifyURL),
				zap.Error(err))
		}
	}
}

// webhookFor returns the channel for a rule's notify URL, creating it on
// first use
func (m *AlertManager) webhookFor(url string) *WebhookChannel {
	if ch, ok := m.webhooks.Load(url); ok {
		return ch.(*WebhookChannel)
	}
	ch, _ := m.webhooks.LoadOrStore(url, NewWebhookChannel(url, m.logger))
	return ch.(*WebhookChannel)
}
