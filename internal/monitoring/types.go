package monitoring

import "time"

// InstanceType represents the type of worker instance
type InstanceType string

const (
	InstanceTypeChief     InstanceType = "chief"
	InstanceTypeBuilder   InstanceType = "builder"
	InstanceTypePublisher InstanceType = "publisher"
	InstanceTypeDocs      InstanceType = "docs"
)

// InstanceStatus represents the current state of an instance
type InstanceStatus string

const (
	StatusOnline  InstanceStatus = "online"
	StatusOffline InstanceStatus = "offline"
	StatusUnknown InstanceStatus = "unknown"
)

// InstanceInfo contains metadata about a worker instance
type InstanceInfo struct {
	// Identity
	InstanceID   string       `json:"instance_id"`   // Unique identifier (hostname-type)
	InstanceType InstanceType `json:"instance_type"` // chief, builder, publisher, docs
	Hostname     string       `json:"hostname"`
	PID          int          `json:"pid"`

	// Timing
	StartTime     time.Time `json:"start_time"`
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// Status
	Status InstanceStatus `json:"status"`

	// Capacity
	Concurrency int `json:"concurrency"`
	ActiveTasks int `json:"active_tasks"`

	// System Metrics
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage uint64  `json:"memory_usage"`
	MemoryTotal uint64  `json:"memory_total"`
	DiskUsage   uint64  `json:"disk_usage"`
	DiskTotal   uint64  `json:"disk_total"`

	// Version
	Version string `json:"version"`
}

// HeartbeatRequest is sent by workers to the chief
type HeartbeatRequest struct {
	InstanceID   string       `json:"instance_id"`
	InstanceType InstanceType `json:"instance_type"`
	Hostname     string       `json:"hostname"`
	PID          int          `json:"pid"`
	Concurrency  int          `json:"concurrency"`
	ActiveTasks  int          `json:"active_tasks"`
	CPUUsage     float64      `json:"cpu_usage"`
	MemoryUsage  uint64       `json:"memory_usage"`
	MemoryTotal  uint64       `json:"memory_total"`
	DiskUsage    uint64       `json:"disk_usage"`
	DiskTotal    uint64       `json:"disk_total"`
	Version      string       `json:"version"`
}

// InstanceSummary provides aggregate statistics
type InstanceSummary struct {
	Total   int            `json:"total"`
	Online  int            `json:"online"`
	Offline int            `json:"offline"`
	ByType  map[string]int `json:"by_type"`
}

// InstanceListResponse is the response for listing instances
type InstanceListResponse struct {
	Instances []*InstanceInfo `json:"instances"`
	Summary   InstanceSummary `json:"summary"`
}
