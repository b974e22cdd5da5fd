package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/service"
	"github.com/mivius/automaton/internal/testutil"
)

func findInstance(instances []*model.Instance, id string) *model.Instance {
	for _, instance := range instances {
		if instance.ID == id {
			return instance
		}
	}
	return nil
}

func TestMetricsCollector(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     "TELEMETRY",
		Subjects: []string{service.SubjectHeartbeat, service.SubjectEngineMetrics},
		Storage:  nats.MemoryStorage,
	})
	require.NoError(t, err)

	logger := zap.NewNop()
	events := service.NewEventService(js, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := NewMetricsCollector(events, 200*time.Millisecond, logger)
	require.NoError(t, collector.Start(ctx))
	defer collector.Stop()

	heartbeat := func(instanceID string, completed int64) {
		require.NoError(t, events.PublishHeartbeat(ctx, model.Heartbeat{
			InstanceID: instanceID,
			Timestamp:  time.Now(),
			Stats: model.EngineStats{
				Running:     1,
				Completed:   completed,
				CollectedAt: time.Now(),
			},
		}))
	}

	t.Run("Heartbeat Registers An Instance", func(t *testing.T) {
		heartbeat("engine-1", 5)

		require.Eventually(t, func() bool {
			return findInstance(collector.Instances(), "engine-1") != nil
		}, 5*time.Second, 50*time.Millisecond)

		instance := findInstance(collector.Instances(), "engine-1")
		assert.Equal(t, model.InstanceStatusHealthy, instance.Status)
		assert.Equal(t, int64(5), instance.Stats.Completed)
		assert.False(t, instance.LastHeartbeat.IsZero())
	})

	t.Run("Later Heartbeats Refresh Stats", func(t *testing.T) {
		heartbeat("engine-1", 9)

		require.Eventually(t, func() bool {
			instance := findInstance(collector.Instances(), "engine-1")
			return instance != nil && instance.Stats.Completed == 9
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("Snapshot Includes Healthy Counters", func(t *testing.T) {
		// Snapshots block for a second of CPU sampling, so allow a
		// generous consume window
		payloads, err := testutil.ConsumeMessages(js, service.SubjectEngineMetrics, 3*time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, payloads)

		var stats model.EngineStats
		require.NoError(t, json.Unmarshal(payloads[len(payloads)-1], &stats))
		assert.Equal(t, int64(9), stats.Completed)
		assert.False(t, stats.CollectedAt.IsZero())
		assert.GreaterOrEqual(t, stats.MemoryUsage, 0.0)
	})

	t.Run("Silent Instance Goes Unhealthy Then Recovers", func(t *testing.T) {
		staleCtx, staleCancel := context.WithCancel(context.Background())
		defer staleCancel()

		watcher := NewMetricsCollector(events, 100*time.Millisecond, logger)
		watcher.staleAfter = 300 * time.Millisecond
		require.NoError(t, watcher.Start(staleCtx))
		defer watcher.Stop()

		heartbeat("engine-2", 1)

		require.Eventually(t, func() bool {
			instance := findInstance(watcher.Instances(), "engine-2")
			return instance != nil && instance.Status == model.InstanceStatusHealthy
		}, 5*time.Second, 50*time.Millisecond)

		// No further heartbeats; the staleness check flips it
		require.Eventually(t, func() bool {
			instance := findInstance(watcher.Instances(), "engine-2")
			return instance != nil && instance.Status == model.InstanceStatusUnhealthy
		}, 10*time.Second, 100*time.Millisecond)

		heartbeat("engine-2", 2)

		require.Eventually(t, func() bool {
			instance := findInstance(watcher.Instances(), "engine-2")
			return instance != nil && instance.Status == model.InstanceStatusHealthy
		}, 5*time.Second, 50*time.Millisecond)
	})
}
