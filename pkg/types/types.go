// ============================================================================
// HeatQueue Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Serializable domain models shared by the CLI, config loader, and
// health server. internal/queue owns the in-process concurrency types
// (Handle, Outcome, JobContext); this package owns their wire/YAML-facing
// projections, so internal/queue never has to import encoding concerns.
//
// Design Principles:
//   1. Domain-Driven Design - business concepts as types, not bare maps
//   2. JSON/YAML Serialization - full round-trip support
//   3. Unix milliseconds for timestamps - cross-platform, JSON-portable
//
// ============================================================================

package types

import "time"

// JobSpec is the serializable descriptor for a CLI- or config-submitted
// synthetic load job, translated into a queue.JobFunc by internal/loadgen.
type JobSpec struct {
	Name              string        `json:"name" yaml:"name"`
	SpinMillis        int           `json:"spin_millis" yaml:"spin_millis"`
	FailureRate       float64       `json:"failure_rate" yaml:"failure_rate"`
	DurationLimit     time.Duration `json:"duration_limit" yaml:"duration_limit"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	// Load is the CPU-load fraction (0, 1] this job intends to occupy,
	// checked against the safety.Bounds MaxLoad ceiling before admission.
	// Zero is treated as "unset" and defaults to 1.0 (full load) by the CLI.
	Load float64 `json:"load" yaml:"load"`
}

// OutcomeRecord is the serializable projection of a queue.Outcome, used for
// CLI output and for internal/audit's append-only decision log.
type OutcomeRecord struct {
	Job       string `json:"job"`
	Kind      string `json:"kind"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp_ms"`
}

// QueueStats is the serializable projection of a queue.MetricsSnapshot
// exposed over internal/healthsrv's /queue endpoint.
type QueueStats struct {
	Started         uint64 `json:"started"`
	Completed       uint64 `json:"completed"`
	Failed          uint64 `json:"failed"`
	TimedOut        uint64 `json:"timed_out"`
	HeartbeatMissed uint64 `json:"heartbeat_missed"`
	SensorThrottles uint64 `json:"sensor_throttles"`
	SensorAborts    uint64 `json:"sensor_aborts"`
	QueueRejections uint64 `json:"queue_rejections"`
}

// Role identifies which control-plane operations an actor may invoke
// against internal/control's Enqueue wrapper.
type Role string

const (
	RoleOperator Role = "operator" // may enqueue and read state
	RoleAdmin    Role = "admin"    // may also drive canary rollouts
	RoleReadOnly Role = "readonly" // may only read state
)

// CanaryStage describes one step of a rollout ramp: run at Weight (0..1)
// traffic share for at least MinDuration before the release manager
// considers promoting to the next stage.
type CanaryStage struct {
	Name        string        `json:"name" yaml:"name"`
	Weight      float64       `json:"weight" yaml:"weight"`
	MinDuration time.Duration `json:"min_duration" yaml:"min_duration"`
}
