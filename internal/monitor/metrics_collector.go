package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/service"
)

const (
	// DefaultCollectInterval is how often a telemetry snapshot is published
	DefaultCollectInterval = 30 * time.Second

	defaultStaleAfter = 15 * time.Second
)

// MetricsCollector tracks engine instances through their heartbeats and
// periodically publishes an aggregate telemetry snapshot
type MetricsCollector struct {
	logger     *zap.Logger
	events     *service.EventService
	interval   time.Duration
	staleAfter time.Duration

	mu        sync.RWMutex
	instances map[string]*model.Instance

	stop chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(events *service.EventService, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &MetricsCollector{
		logger:     logger.Named("metrics-collector"),
		events:     events,
		interval:   interval,
		staleAfter: defaultStaleAfter,
		instances:  make(map[string]*model.Instance),
		stop:       make(chan struct{}),
	}
}

// Start subscribes to engine heartbeats and begins the collection loop
func (c *MetricsCollector) Start(ctx context.Context) error {
	if err := c.events.SubscribeHeartbeats(ctx, c.handleHeartbeat); err != nil {
		return fmt.Errorf("failed to subscribe to heartbeats: %w", err)
	}

	go c.collectLoop(ctx)

	c.logger.Info("Metrics collector started",
		zap.Duration("interval", c.interval))

	return nil
}

// Stop stops the collection loop
func (c *MetricsCollector) Stop() {
	close(c.stop)
}

// handleHeartbeat refreshes the entry for a reporting engine instance
func (c *MetricsCollector) handleHeartbeat(hb model.Heartbeat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	instance, ok := c.instances[hb.InstanceID]
	if !ok {
		instance = &model.Instance{ID: hb.InstanceID}
		c.instances[hb.InstanceID] = instance
		c.logger.Info("Engine instance discovered",
			zap.String("instance_id", hb.InstanceID))
	} else if instance.Status == model.InstanceStatusUnhealthy {
		c.logger.Info("Engine instance recovered",
			zap.String("instance_id", hb.InstanceID))
	}

	instance.Status = model.InstanceStatusHealthy
	instance.LastHeartbeat = hb.Timestamp
	instance.Stats = hb.Stats
}

// collectLoop runs the periodic staleness check and snapshot publish
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.markStale()
			c.publishSnapshot(ctx)
		}
	}
}

// markStale flags instances whose heartbeats stopped arriving
func (c *MetricsCollector) markStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, instance := range c.instances {
		if instance.Status == model.InstanceStatusHealthy && time.Since(instance.LastHeartbeat) > c.staleAfter {
			instance.Status = model.InstanceStatusUnhealthy
			c.logger.Warn("Engine instance went silent",
				zap.String("instance_id", id),
				zap.Time("last_heartbeat", instance.LastHeartbeat))
		}
	}
}

// publishSnapshot publishes one aggregate stats snapshot. Counters are
// summed over healthy instances only.
func (c *MetricsCollector) publishSnapshot(ctx context.Context) {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	stats := model.EngineStats{
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		CollectedAt: time.Now(),
	}

	c.mu.RLock()
	for _, instance := range c.instances {
		if instance.Status != model.InstanceStatusHealthy {
			continue
		}
		stats.Running += instance.Stats.Running
		stats.Completed += instance.Stats.Completed
		stats.Failed += instance.Stats.Failed
	}
	c.mu.RUnlock()

	if err := c.events.PublishEngineStats(ctx, stats); err != nil {
		c.logger.Error("Failed to publish engine stats", zap.Error(err))
		return
	}

	c.logger.Debug("Telemetry snapshot published",
		zap.Float64("cpu_usage", stats.CPUUsage),
		zap.Float64("memory_usage", stats.MemoryUsage),
		zap.Int64("completed", stats.Completed))
}

// Instances returns a copy of the currently known engine instances
func (c *MetricsCollector) Instances() []*model.Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	instances := make([]*model.Instance, 0, len(c.instances))
	for _, instance := range c.instances {
		copied := *instance
		instances = append(instances, &copied)
	}
	return instances
}
