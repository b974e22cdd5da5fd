package scheduler

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/service"
)

// Stream layout shared by the engine components
const (
	AutomationsStream = "AUTOMATIONS"
	TelemetryStream   = "TELEMETRY"
	AlertsStream      = "ALERTS"

	streamMaxAge = 24 * time.Hour
)

// EnsureStreams creates the JetStream streams the engine publishes on,
// reusing streams that already exist
func EnsureStreams(js nats.JetStreamContext, logger *zap.Logger) error {
	streams := []*nats.StreamConfig{
		{
			Name:       AutomationsStream,
			Subjects:   []string{service.SubjectTrigger, service.SubjectResultAll},
			Retention:  nats.LimitsPolicy,
			MaxAge:     streamMaxAge,
			Discard:    nats.DiscardOld,
			MaxMsgSize: 1 << 20,
			Storage:    nats.FileStorage,
			Replicas:   1,
			Duplicates: time.Hour,
		},
		{
			Name:     TelemetryStream,
			Subjects: []string{service.SubjectHeartbeat, service.SubjectEngineMetrics},
			Storage:  nats.FileStorage,
			MaxAge:   time.Hour,
		},
		{
			Name:     AlertsStream,
			Subjects: []string{service.SubjectAlertAll},
			Storage:  nats.FileStorage,
			MaxAge:   streamMaxAge,
		},
	}

	for _, cfg := range streams {
		if err := ensureStream(js, cfg, logger); err != nil {
			return err
		}
	}
	return nil
}

func ensureStream(js nats.JetStreamContext, cfg *nats.StreamConfig, logger *zap.Logger) error {
	_, err := js.StreamInfo(cfg.Name)
	if err == nil {
		logger.Info("Using existing stream", zap.String("stream", cfg.Name))
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if _, err := js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	logger.Info("Stream created", zap.String("stream", cfg.Name))
	return nil
}
