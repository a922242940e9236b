// Package safety is a thin pre-flight façade in front of a WorkQueue: it
// validates a job's requested runtime and load against a configured
// envelope before the job ever reaches the queue, mirroring the
// validation the original heating-machine controller performed inside its
// own start() method before handing work to the scheduler.
//
// It does not duplicate the queue's own sensor/duration machinery — that
// gating still happens inside queue.WorkQueue via SensorPolicy and the
// duration-limit race. safety only rejects requests that are malformed or
// out of bounds before admission, and it reports them synchronously as a
// returned error, whereas the queue's own failures (ErrQueueFull included)
// are delivered through a Handle.
package safety

import (
	"errors"
	"fmt"
	"time"

	"github.com/magyarmex/heatqueue/internal/queue"
)

// Pre-flight validation errors. These are returned synchronously from
// Submit and never reach a Handle — by the time a job has a Handle, it
// has already passed the envelope.
var (
	ErrInvalidRuntime = errors.New("safety: requested runtime must be positive")
	ErrLoadOutOfRange = errors.New("safety: load is outside the configured envelope")
	ErrSensorBreached = errors.New("safety: sensor reading already above safety threshold")
)

// Bounds is the envelope a job request must satisfy before admission: a
// positive load ceiling and an optional sensor threshold checked against
// the caller-supplied reading at submit time. It is immutable after
// construction, matching the config-driven thresholds it is built from.
type Bounds struct {
	MaxLoad          float64
	SensorThreshold  *float64
	MaxRuntime       time.Duration
	CooldownDuration time.Duration
}

// Envelope wraps a WorkQueue with Bounds, rejecting malformed or
// out-of-range requests before they ever reach the queue.
type Envelope struct {
	Queue  *queue.WorkQueue
	Bounds Bounds
}

// New builds an Envelope over q enforcing bounds.
func New(q *queue.WorkQueue, bounds Bounds) *Envelope {
	return &Envelope{Queue: q, Bounds: bounds}
}

// Validate runs the three pre-flight checks the envelope enforces, without
// touching a queue. Callers that submit through a different front door
// (e.g. a role-gated control.Plane) can call Validate directly and only
// forward to that front door once it passes; Submit calls it internally.
func (b Bounds) Validate(requestedRuntime time.Duration, load float64, sensorReading *float64) error {
	if requestedRuntime <= 0 {
		return ErrInvalidRuntime
	}
	if load <= 0 || load > b.MaxLoad {
		return fmt.Errorf("%w: got %v, max %v", ErrLoadOutOfRange, load, b.MaxLoad)
	}
	if b.SensorThreshold != nil && sensorReading != nil && *sensorReading >= *b.SensorThreshold {
		return fmt.Errorf("%w: reading %v, threshold %v", ErrSensorBreached, *sensorReading, *b.SensorThreshold)
	}
	return nil
}

// Submit validates requestedRuntime, load, and sensorReading against the
// envelope, then forwards fn to the underlying queue with a duration
// limit capped at Bounds.MaxRuntime. A validation failure is returned
// immediately and fn is never enqueued — this is the same "raise before
// touching the queue" behavior as the controller this package is modeled
// on.
func (e *Envelope) Submit(fn queue.JobFunc, requestedRuntime time.Duration, load float64, sensorReading *float64, heartbeatInterval time.Duration) (*queue.Handle, error) {
	if err := e.Bounds.Validate(requestedRuntime, load, sensorReading); err != nil {
		return nil, err
	}

	durationLimit := requestedRuntime
	if e.Bounds.MaxRuntime > 0 && durationLimit > e.Bounds.MaxRuntime {
		durationLimit = e.Bounds.MaxRuntime
	}
	return e.Queue.Enqueue(fn, durationLimit, heartbeatInterval), nil
}
