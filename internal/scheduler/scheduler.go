package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/storage"
)

// DefaultTickSpec fires at second zero of every minute
const DefaultTickSpec = "0 * * * * *"

// TriggerPublisher publishes trigger events for due automations
type TriggerPublisher interface {
	PublishTrigger(ctx context.Context, event model.TriggerEvent) error
}

// Scheduler periodically scans the automation store and publishes one
// trigger per automation due in the current period. It keeps no
// per-automation state between ticks; dueness is derived entirely from the
// store, so a failed run is retried no earlier than its next period.
type Scheduler struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	store    storage.AutomationStore
	events   TriggerPublisher
	cron     *cron.Cron
	tickSpec string
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewScheduler creates a new scheduler ticking at tickSpec, a
// seconds-granularity cron expression. An empty spec means DefaultTickSpec.
func NewScheduler(js nats.JetStreamContext, store storage.AutomationStore, events TriggerPublisher, tickSpec string, logger *zap.Logger) *Scheduler {
	if tickSpec == "" {
		tickSpec = DefaultTickSpec
	}

	cronLog := &cronLogger{logger: logger.Named("cron")}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLog)),
	)

	return &Scheduler{
		logger:   logger.Named("scheduler"),
		js:       js,
		store:    store,
		events:   events,
		cron:     c,
		tickSpec: tickSpec,
	}
}

// Start ensures the streams exist and begins ticking
func (s *Scheduler) Start(ctx context.Context) error {
	if err := EnsureStreams(s.js, s.logger); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(s.tickSpec, func() {
		s.tick(ctx, time.Now())
	})
	if err != nil {
		return fmt.Errorf("failed to add tick job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("tick", s.tickSpec))
	return nil
}

// Stop stops ticking and waits for a running tick to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// tick publishes one trigger per automation due at now. Store and publish
// failures are logged and skipped; the next tick re-evaluates from scratch.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due automations", zap.Error(err))
		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.Info("Automations due",
		zap.Int("count", len(due)),
		zap.Time("now", now))

	for _, automation := range due {
		event := model.TriggerEvent{
			AutomationID: automation.ID,
			PeriodStart:  automation.PeriodStart(now),
			FiredAt:      now,
		}
		if err := s.events.PublishTrigger(ctx, event); err != nil {
			s.logger.Error("Failed to publish trigger",
				zap.String("automation_id", automation.ID),
				zap.Error(err))
			continue
		}
	}
}
