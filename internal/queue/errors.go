package queue

import "errors"

// Sentinel errors surfaced through a Handle's outcome. Callers should use
// errors.Is against these rather than comparing OutcomeKind directly when
// they only care about a single failure mode.
var (
	// ErrQueueFull is returned when enqueue is rejected because the bounded
	// queue is at capacity. It is the only error ever observed synchronously
	// from Enqueue's return value (in the handle, not a panic/return error);
	// it is also the error an already-resolved handle carries.
	ErrQueueFull = errors.New("heatqueue: queue is full")

	// ErrSensorLimitExceeded is raised by SensorPolicy.Enforce when
	// stop-on-violation is set and a monitored reading is out of bounds.
	ErrSensorLimitExceeded = errors.New("heatqueue: sensor limit exceeded")

	// ErrTimeout is raised when a job exceeds its duration limit.
	ErrTimeout = errors.New("heatqueue: job exceeded duration limit")

	// ErrHeartbeatMissed is raised when a job fails to rearm its heartbeat
	// within the configured interval.
	ErrHeartbeatMissed = errors.New("heatqueue: heartbeat missed")
)
