package domain

import (
	"slices"
	"time"
)

// WorkerStatus is the liveness state of a daemon instance.
type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerIdle    WorkerStatus = "idle"
	WorkerWorking WorkerStatus = "working"
	WorkerOffline WorkerStatus = "offline"
	WorkerError   WorkerStatus = "error"
)

// WorkerIdentity is the re-registration dedup key.
type WorkerIdentity struct {
	Host       string
	Aspect     string
	OperatorID string
}

// WorkerCounters accumulate over the worker's lifetime.
type WorkerCounters struct {
	ItemsIngested     int64 `json:"items_ingested"`
	DecisionsSurfaced int64 `json:"decisions_surfaced"`
	UptimeSeconds     int64 `json:"uptime_seconds"`
	TokensProcessed   int64 `json:"tokens_processed"`
}

// ResourceUsage is the last reported process footprint.
type ResourceUsage struct {
	Goroutines int     `json:"goroutines"`
	HeapMB     float64 `json:"heap_mb"`
}

// WorkerRecord is the registry's view of one daemon instance.
type WorkerRecord struct {
	ID              string         `json:"id"`
	OperatorID      string         `json:"operator_id"`
	Name            string         `json:"name"`
	Aspect          string         `json:"aspect"`
	Host            string         `json:"host"`
	Platform        string         `json:"platform"`
	Model           string         `json:"model,omitempty"`
	Version         string         `json:"version,omitempty"`
	Capabilities    []string       `json:"capabilities"`
	Status          WorkerStatus   `json:"status"`
	RegisteredAt    time.Time      `json:"registered_at"`
	LastHeartbeatAt time.Time      `json:"last_heartbeat_at"`
	LastActivityAt  time.Time      `json:"last_activity_at"`
	ConfigVersion   int64          `json:"config_version"`
	Counters        WorkerCounters `json:"counters"`
	CurrentTask     string         `json:"current_task,omitempty"`
	QueueDepth      int            `json:"queue_depth"`
	ScorerReachable bool           `json:"scorer_reachable"`
	Resources       ResourceUsage  `json:"resources"`
	RecentErrors    []string       `json:"recent_errors,omitempty"`
}

// Identity returns the registration dedup key of the record.
func (w WorkerRecord) Identity() WorkerIdentity {
	return WorkerIdentity{Host: w.Host, Aspect: w.Aspect, OperatorID: w.OperatorID}
}

// Clone returns a copy that shares no slices with w.
func (w WorkerRecord) Clone() WorkerRecord {
	w.Capabilities = slices.Clone(w.Capabilities)
	w.RecentErrors = slices.Clone(w.RecentErrors)
	return w
}
