package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/service"
)

const (
	// DefaultWorkers bounds how many scheduled invocations run concurrently
	DefaultWorkers = 4

	triggerQueueGroup = "automation-engine"
	heartbeatInterval = 5 * time.Second
)

// HeartbeatPublisher publishes engine liveness reports
type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, hb model.Heartbeat) error
}

// queuedTrigger pairs a decoded trigger with its JetStream message so the
// worker can ack once the invocation finished
type queuedTrigger struct {
	event model.TriggerEvent
	msg   *nats.Msg
}

// Dispatcher consumes scheduled trigger events from JetStream and feeds
// them to the invoker through a bounded worker pool. Instances share the
// load via a queue group.
type Dispatcher struct {
	logger         *zap.Logger
	js             nats.JetStreamContext
	invoker        *Invoker
	events         HeartbeatPublisher
	stats          *Stats
	instanceID     string
	workers        int
	heartbeatEvery time.Duration
	triggers       chan queuedTrigger
	sub            *nats.Subscription
	wg             sync.WaitGroup
	stop           chan struct{}
}

// NewDispatcher creates a new trigger dispatcher
func NewDispatcher(js nats.JetStreamContext, invoker *Invoker, events HeartbeatPublisher, stats *Stats, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		logger:         logger.Named("dispatcher"),
		js:             js,
		invoker:        invoker,
		events:         events,
		stats:          stats,
		instanceID:     uuid.New().String(),
		workers:        workers,
		heartbeatEvery: heartbeatInterval,
		triggers:       make(chan queuedTrigger, workers*2),
		stop:           make(chan struct{}),
	}
}

// InstanceID returns the identifier this dispatcher reports in heartbeats
func (d *Dispatcher) InstanceID() string {
	return d.instanceID
}

// Start subscribes to the trigger subject and launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) error {
	sub, err := d.js.QueueSubscribe(service.SubjectTrigger, triggerQueueGroup, func(msg *nats.Msg) {
		d.handleTrigger(ctx, msg)
	}, nats.ManualAck(), nats.AckWait(30*time.Second), nats.MaxDeliver(3))
	if err != nil {
		return fmt.Errorf("failed to subscribe to trigger subject: %w", err)
	}
	d.sub = sub

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.wg.Add(1)
	go d.heartbeatLoop(ctx)

	d.logger.Info("Dispatcher started",
		zap.String("instance_id", d.instanceID),
		zap.Int("workers", d.workers))
	return nil
}

// Stop unsubscribes from the trigger subject and drains the worker pool
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping dispatcher")

	close(d.stop)
	if d.sub != nil {
		if err := d.sub.Unsubscribe(); err != nil {
			d.logger.Error("Failed to unsubscribe from trigger subject", zap.Error(err))
		}
	}
	d.wg.Wait()
}

// handleTrigger decodes an incoming trigger and queues it for a worker
func (d *Dispatcher) handleTrigger(ctx context.Context, msg *nats.Msg) {
	var event model.TriggerEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		d.logger.Error("Failed to unmarshal trigger event", zap.Error(err))
		return
	}

	select {
	case d.triggers <- queuedTrigger{event: event, msg: msg}:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// worker drains the trigger queue, one invocation at a time
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case qt := <-d.triggers:
			d.process(ctx, qt)
		}
	}
}

// process runs one scheduled trigger and acks it when done. Failed
// invocations are not redelivered; the next due period retries naturally.
func (d *Dispatcher) process(ctx context.Context, qt queuedTrigger) {
	result, err := d.invoker.InvokeScheduled(ctx, qt.event.AutomationID, qt.event.PeriodStart)
	if err != nil {
		d.logger.Error("Scheduled invocation failed",
			zap.String("automation_id", qt.event.AutomationID),
			zap.Error(err))
		qt.msg.Ack()
		return
	}

	if result == nil {
		d.logger.Debug("Trigger skipped",
			zap.String("automation_id", qt.event.AutomationID))
	}

	qt.msg.Ack()
}

// heartbeatLoop reports engine liveness on the telemetry stream
func (d *Dispatcher) heartbeatLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			hb := model.Heartbeat{
				InstanceID: d.instanceID,
				Timestamp:  time.Now(),
				Stats:      d.stats.Snapshot(),
			}
			if err := d.events.PublishHeartbeat(ctx, hb); err != nil {
				d.logger.Error("Failed to publish heartbeat", zap.Error(err))
			}
		}
	}
}
