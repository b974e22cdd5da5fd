package model

import "time"

// InstanceStatus represents the health of an engine instance
type InstanceStatus string

const (
	InstanceStatusHealthy   InstanceStatus = "healthy"
	InstanceStatusUnhealthy InstanceStatus = "unhealthy"
	InstanceStatusOffline   InstanceStatus = "offline"
)

// Instance represents a running engine instance as seen by the monitor
type Instance struct {
	ID            string         `json:"id"`
	Status        InstanceStatus `json:"status"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	Stats         EngineStats    `json:"stats"`
}

// EngineStats represents engine execution counters and resource usage
type EngineStats struct {
	Running     int64     `json:"running"`
	Completed   int64     `json:"completed"`
	Failed      int64     `json:"failed"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	CollectedAt time.Time `json:"collected_at"`
}

// Heartbeat is the periodic liveness report published by an engine instance
type Heartbeat struct {
	InstanceID string      `json:"instance_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Stats      EngineStats `json:"stats"`
}
