package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

// Subjects carried on the AUTOMATIONS, TELEMETRY and ALERTS streams
const (
	SubjectTrigger       = "automation.trigger"
	SubjectResultPrefix  = "automation.result."
	SubjectResultAll     = "automation.result.*"
	SubjectHeartbeat     = "engine.heartbeat"
	SubjectEngineMetrics = "metrics.engine"
	SubjectAlertPrefix   = "alert."
	SubjectAlertAll      = "alert.*"
)

// EventService publishes and consumes automation lifecycle events over JetStream
type EventService struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewEventService creates a new event service
func NewEventService(js nats.JetStreamContext, logger *zap.Logger) *EventService {
	return &EventService{
		js:     js,
		logger: logger.Named("event-service"),
	}
}

// PublishTrigger announces that an automation is due to run in the current period
func (s *EventService) PublishTrigger(ctx context.Context, event model.TriggerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger event: %w", err)
	}

	if _, err := s.js.Publish(SubjectTrigger, data); err != nil {
		s.logger.Error("Failed to publish trigger event",
			zap.String("automation_id", event.AutomationID),
			zap.Error(err))
		return err
	}

	s.logger.Info("Trigger event published",
		zap.String("automation_id", event.AutomationID))
	return nil
}

// PublishResult announces a finished execution. Ad hoc runs that are not tied
// to a stored automation are published under the "adhoc" token.
func (s *EventService) PublishResult(ctx context.Context, event model.ExecutionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal execution event: %w", err)
	}

	token := event.AutomationID
	if token == "" {
		token = "adhoc"
	}

	if _, err := s.js.Publish(SubjectResultPrefix+token, data); err != nil {
		s.logger.Error("Failed to publish execution event",
			zap.String("automation_id", event.AutomationID),
			zap.String("log_id", event.LogID),
			zap.Error(err))
		return err
	}

	s.logger.Info("Execution event published",
		zap.String("automation_id", event.AutomationID),
		zap.String("log_id", event.LogID),
		zap.Bool("success", event.Success))
	return nil
}

// PublishHeartbeat reports engine liveness on the telemetry stream
func (s *EventService) PublishHeartbeat(ctx context.Context, hb model.Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	if _, err := s.js.Publish(SubjectHeartbeat, data); err != nil {
		s.logger.Error("Failed to publish heartbeat",
			zap.String("instance_id", hb.InstanceID),
			zap.Error(err))
		return err
	}

	return nil
}

// PublishEngineStats reports an aggregate resource and throughput snapshot
func (s *EventService) PublishEngineStats(ctx context.Context, stats model.EngineStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal engine stats: %w", err)
	}

	if _, err := s.js.Publish(SubjectEngineMetrics, data); err != nil {
		s.logger.Error("Failed to publish engine stats", zap.Error(err))
		return err
	}

	return nil
}

// PublishAlert fans an alert out under alert.<type>
func (s *EventService) PublishAlert(ctx context.Context, alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := s.js.Publish(SubjectAlertPrefix+string(alert.Type), data); err != nil {
		s.logger.Error("Failed to publish alert",
			zap.String("alert_id", alert.ID),
			zap.String("alert_type", string(alert.Type)),
			zap.Error(err))
		return err
	}

	s.logger.Info("Alert published",
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))
	return nil
}

// SubscribeResults delivers every execution event to handler until ctx is done
func (s *EventService) SubscribeResults(ctx context.Context, handler func(model.ExecutionEvent)) error {
	sub, err := s.js.Subscribe(SubjectResultAll, func(msg *nats.Msg) {
		var event model.ExecutionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Error("Failed to unmarshal execution event",
				zap.Error(err))
			return
		}

		handler(event)
		msg.Ack()
	})

	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}

// SubscribeHeartbeats delivers engine heartbeats to handler until ctx is done
func (s *EventService) SubscribeHeartbeats(ctx context.Context, handler func(model.Heartbeat)) error {
	sub, err := s.js.Subscribe(SubjectHeartbeat, func(msg *nats.Msg) {
		var hb model.Heartbeat
		if err := json.Unmarshal(msg.Data, &hb); err != nil {
			s.logger.Error("Failed to unmarshal heartbeat",
				zap.Error(err))
			return
		}

		handler(hb)
		msg.Ack()
	})

	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}

// SubscribeAlerts delivers published alerts to handler until ctx is done
func (s *EventService) SubscribeAlerts(ctx context.Context, handler func(model.Alert)) error {
	sub, err := s.js.Subscribe(SubjectAlertAll, func(msg *nats.Msg) {
		var alert model.Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			s.logger.Error("Failed to unmarshal alert",
				zap.Error(err))
			return
		}

		handler(alert)
		msg.Ack()
	})

	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
