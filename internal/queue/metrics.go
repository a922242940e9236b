package queue

import "sync/atomic"

// Metrics is a passive, monotonic counter bundle. Workers increment these
// after a decisive event; producers must not increment them directly,
// except queueRejections which the non-blocking enqueue path touches.
//
// All fields are accessed through sync/atomic so a single Metrics value can
// be shared across every worker goroutine and read concurrently from
// Snapshot without a lock.
type Metrics struct {
	started         uint64
	completed       uint64
	failed          uint64
	timedOut        uint64
	heartbeatMissed uint64
	sensorThrottles uint64
	sensorAborts    uint64
	queueRejections uint64
}

// MetricsSnapshot is a stable, point-in-time copy of a Metrics bundle.
type MetricsSnapshot struct {
	Started         uint64 `json:"started"`
	Completed       uint64 `json:"completed"`
	Failed          uint64 `json:"failed"`
	TimedOut        uint64 `json:"timed_out"`
	HeartbeatMissed uint64 `json:"heartbeat_missed"`
	SensorThrottles uint64 `json:"sensor_throttles"`
	SensorAborts    uint64 `json:"sensor_aborts"`
	QueueRejections uint64 `json:"queue_rejections"`
}

// NewMetrics returns a zeroed counter bundle.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incStarted()         { atomic.AddUint64(&m.started, 1) }
func (m *Metrics) incCompleted()       { atomic.AddUint64(&m.completed, 1) }
func (m *Metrics) incFailed()          { atomic.AddUint64(&m.failed, 1) }
func (m *Metrics) incTimedOut()        { atomic.AddUint64(&m.timedOut, 1) }
func (m *Metrics) incHeartbeatMissed() { atomic.AddUint64(&m.heartbeatMissed, 1) }
func (m *Metrics) incSensorThrottles() { atomic.AddUint64(&m.sensorThrottles, 1) }
func (m *Metrics) incSensorAborts()    { atomic.AddUint64(&m.sensorAborts, 1) }
func (m *Metrics) incQueueRejections() { atomic.AddUint64(&m.queueRejections, 1) }

// Snapshot returns a consistent-enough point-in-time view. Individual
// fields are read atomically; the bundle as a whole is not a single atomic
// transaction, matching the "stable, monotonically-non-decreasing view"
// contract of §3/§4.4 rather than a stronger linearizability guarantee.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Started:         atomic.LoadUint64(&m.started),
		Completed:       atomic.LoadUint64(&m.completed),
		Failed:          atomic.LoadUint64(&m.failed),
		TimedOut:        atomic.LoadUint64(&m.timedOut),
		HeartbeatMissed: atomic.LoadUint64(&m.heartbeatMissed),
		SensorThrottles: atomic.LoadUint64(&m.sensorThrottles),
		SensorAborts:    atomic.LoadUint64(&m.sensorAborts),
		QueueRejections: atomic.LoadUint64(&m.queueRejections),
	}
}
