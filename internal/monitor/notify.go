package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

// WebhookChannel delivers alerts as JSON POST requests
type WebhookChannel struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
}

// NewWebhookChannel creates a webhook notification channel
func NewWebhookChannel(url string, logger *zap.Logger) *WebhookChannel {
	return &WebhookChannel{
		logger: logger.Named("webhook-channel"),
		url:    url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send implements NotificationChannel.Send
func (w *WebhookChannel) Send(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	w.logger.Debug("Alert delivered",
		zap.String("alert_id", alert.ID),
		zap.Int("status", resp.StatusCode))

	return nil
}

// LogChannel writes alerts to the application log. It backs deployments
// with no webhook configured.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log notification channel
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger.Named("alerts")}
}

// Send implements NotificationChannel.Send
func (l *LogChannel) Send(_ context.Context, alert model.Alert) error {
	l.logger.Warn("Alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("automation_id", alert.AutomationID),
		zap.String("message", alert.Message))
	return nil
}
