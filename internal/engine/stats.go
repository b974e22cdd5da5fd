package engine

import (
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

// Stats tracks engine throughput counters and system resource usage
type Stats struct {
	logger    *zap.Logger
	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewStats creates a new stats tracker
func NewStats(logger *zap.Logger) *Stats {
	return &Stats{
		logger: logger.Named("engine-stats"),
	}
}

// ExecutionStarted marks one invocation in flight
func (s *Stats) ExecutionStarted() {
	s.running.Add(1)
}

// ExecutionFinished moves one invocation from running to its outcome bucket
func (s *Stats) ExecutionFinished(success bool) {
	s.running.Add(-1)
	if success {
		s.completed.Add(1)
	} else {
		s.failed.Add(1)
	}
}

// Counters returns the current running, completed and failed counts
func (s *Stats) Counters() (running, completed, failed int64) {
	return s.running.Load(), s.completed.Load(), s.failed.Load()
}

// Snapshot returns the counters together with system resource usage
func (s *Stats) Snapshot() model.EngineStats {
	running, completed, failed := s.Counters()
	stats := model.EngineStats{
		Running:     running,
		Completed:   completed,
		Failed:      failed,
		CollectedAt: time.Now(),
	}

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		s.logger.Error("Failed to get CPU usage", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		stats.CPUUsage = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		s.logger.Error("Failed to get memory usage", zap.Error(err))
	} else {
		stats.MemoryUsage = memInfo.UsedPercent
	}

	return stats
}
