package queue

// ============================================================================
// Work Queue Test File
// Purpose: verify enqueue/start/stop lifecycle, capacity rejection, deadline
// enforcement, heartbeat supervision, and sensor gating.
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

// ----------------------------------------------------------------------------
// Basic lifecycle
// ----------------------------------------------------------------------------

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		New(Config{MaxQueueSize: 0, Concurrency: 1})
	})
	assert.Panics(t, func() {
		New(Config{MaxQueueSize: 1, Concurrency: 0})
	})
}

func TestStartIsIdempotent(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 2})
	q.Start()
	q.Start() // no-op, must not spawn a second worker set or panic
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		return 42, nil
	}, 0, 0)
	out := h.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
	assert.Equal(t, 42, out.Value)
}

func TestStopIsIdempotent(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 2})
	q.Start()
	q.Stop()
	assert.NotPanics(t, func() { q.Stop() })
}

func TestEnqueueBeforeStartRejects(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	h := q.Enqueue(func(ctx *JobContext) (any, error) { return nil, nil }, 0, 0)
	out := h.Wait()
	assert.Equal(t, OutcomeQueueFull, out.Kind)
	assert.ErrorIs(t, out.Err, ErrQueueFull)
	assert.EqualValues(t, 1, q.Metrics().Snapshot().QueueRejections)
}

// ----------------------------------------------------------------------------
// S1: bounded queue admission
// ----------------------------------------------------------------------------

func TestQueueFullRejectsImmediately(t *testing.T) {
	q := New(Config{MaxQueueSize: 1, Concurrency: 1})
	q.Start()
	defer q.Stop()

	block := make(chan struct{})
	running := make(chan struct{})
	// occupy the single worker with a job that blocks until released
	first := q.Enqueue(func(ctx *JobContext) (any, error) {
		close(running)
		<-block
		return nil, nil
	}, 0, 0)
	<-running

	// fill the one-slot buffer so the next enqueue has nowhere to land
	second := q.Enqueue(func(ctx *JobContext) (any, error) {
		<-block
		return nil, nil
	}, 0, 0)

	// this one must be rejected without blocking the caller
	third := q.Enqueue(func(ctx *JobContext) (any, error) {
		return nil, nil
	}, 0, 0)
	out := third.Wait()
	assert.Equal(t, OutcomeQueueFull, out.Kind)
	assert.ErrorIs(t, out.Err, ErrQueueFull)

	close(block)
	require.Equal(t, OutcomeValue, first.Wait().Kind)
	require.Equal(t, OutcomeValue, second.Wait().Kind)
}

// ----------------------------------------------------------------------------
// S2: duration-limit enforcement
// ----------------------------------------------------------------------------

func TestDurationLimitTimesOutSlowJob(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	started := make(chan struct{})
	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		close(started)
		<-ctx.Context().Done()
		return nil, ctx.Context().Err()
	}, 20*time.Millisecond, 0)

	<-started
	out := h.Wait()
	assert.Equal(t, OutcomeTimeout, out.Kind)
	assert.ErrorIs(t, out.Err, ErrTimeout)
	assert.EqualValues(t, 1, q.Metrics().Snapshot().TimedOut)
}

func TestJobFasterThanDeadlineSucceeds(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		return "done", nil
	}, time.Second, 0)

	out := h.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
	assert.Equal(t, "done", out.Value)
}

// ----------------------------------------------------------------------------
// S3: heartbeat supervision
// ----------------------------------------------------------------------------

func TestMissedHeartbeatAborts(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		// never pings; the monitor should fire well before this returns
		ctx.Sleep(2 * time.Second)
		return nil, nil
	}, 0, 15*time.Millisecond)

	out := h.Wait()
	assert.Equal(t, OutcomeHeartbeatMissed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrHeartbeatMissed)
	assert.EqualValues(t, 1, q.Metrics().Snapshot().HeartbeatMissed)
}

func TestRegularPingsKeepJobAlive(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		for i := 0; i < 5; i++ {
			ctx.Ping()
			ctx.Sleep(10 * time.Millisecond)
		}
		return "survived", nil
	}, 0, 40*time.Millisecond)

	out := h.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
	assert.Equal(t, "survived", out.Value)
}

func TestDeadlineWinsOverMonitorWhenBothAreSet(t *testing.T) {
	// Regression: when durationLimit and heartbeatInterval are both set,
	// the deadline firing cancels jobCtx, which the heartbeat monitor also
	// observes and returns as ctx.Err() (not ErrHeartbeatMissed). Whichever
	// of jobCtx.Done()/monitorDone the select happens to pick first, the
	// outcome must always classify as a timeout, never a heartbeat miss.
	for i := 0; i < 20; i++ {
		q := New(Config{MaxQueueSize: 4, Concurrency: 1})
		q.Start()

		h := q.Enqueue(func(ctx *JobContext) (any, error) {
			<-ctx.Context().Done()
			return nil, ctx.Context().Err()
		}, 10*time.Millisecond, time.Hour)

		out := h.Wait()
		assert.Equal(t, OutcomeTimeout, out.Kind)
		assert.ErrorIs(t, out.Err, ErrTimeout)
		q.Stop()
	}
}

// ----------------------------------------------------------------------------
// S4/S5: sensor gating
// ----------------------------------------------------------------------------

func TestSensorThrottleThenAdmits(t *testing.T) {
	metrics := NewMetrics()
	calls := 0
	var mu sync.Mutex
	policy := &SensorPolicy{
		Reader: func(ctx context.Context) (SensorSnapshot, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return SensorSnapshot{TemperatureC: f64(120)}, nil
			}
			return SensorSnapshot{TemperatureC: f64(40)}, nil
		},
		MaxTemperatureC: f64(100),
		CooldownSeconds: 0.01,
		StopOnViolation: false,
		Metrics:         metrics,
	}

	q := New(Config{MaxQueueSize: 4, Concurrency: 1, SensorPolicy: policy, Metrics: metrics})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		return "ran", nil
	}, 0, 0)

	out := h.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
	assert.GreaterOrEqual(t, q.Metrics().Snapshot().SensorThrottles, uint64(2))
}

func TestSensorAbortsOnViolationWhenStopOnViolation(t *testing.T) {
	metrics := NewMetrics()
	policy := &SensorPolicy{
		Reader: func(ctx context.Context) (SensorSnapshot, error) {
			return SensorSnapshot{BatteryPercent: f64(2)}, nil
		},
		MinBatteryPercent: f64(10),
		StopOnViolation:   true,
		Metrics:           metrics,
	}

	q := New(Config{MaxQueueSize: 4, Concurrency: 1, SensorPolicy: policy, Metrics: metrics})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		t.Fatal("job body must not run when the sensor gate aborts admission")
		return nil, nil
	}, 0, 0)

	out := h.Wait()
	assert.Equal(t, OutcomeSensorAbort, out.Kind)
	assert.ErrorIs(t, out.Err, ErrSensorLimitExceeded)
	assert.EqualValues(t, 1, q.Metrics().Snapshot().SensorAborts)
}

func TestNilSensorPolicyNeverGates(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) { return "ok", nil }, 0, 0)
	out := h.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
}

// ----------------------------------------------------------------------------
// S6 / shutdown behavior
// ----------------------------------------------------------------------------

func TestStopDrainsInFlightBeforeReturning(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 2})
	q.Start()

	handles := make([]*Handle, 0, 4)
	for i := 0; i < 4; i++ {
		i := i
		handles = append(handles, q.Enqueue(func(ctx *JobContext) (any, error) {
			return i, nil
		}, 0, 0))
	}

	q.Join()
	q.Stop()

	for _, h := range handles {
		out := h.Wait()
		assert.Equal(t, OutcomeValue, out.Kind)
	}
}

func TestRestartAfterStop(t *testing.T) {
	q := New(Config{MaxQueueSize: 2, Concurrency: 1})
	q.Start()
	h1 := q.Enqueue(func(ctx *JobContext) (any, error) { return 1, nil }, 0, 0)
	require.Equal(t, OutcomeValue, h1.Wait().Kind)
	q.Stop()

	q.Start()
	defer q.Stop()
	h2 := q.Enqueue(func(ctx *JobContext) (any, error) { return 2, nil }, 0, 0)
	out := h2.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
	assert.Equal(t, 2, out.Value)
}

// ----------------------------------------------------------------------------
// Job failure propagation
// ----------------------------------------------------------------------------

var errBoom = errors.New("boom")

func TestJobFailurePropagatesError(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		return nil, errBoom
	}, 0, 0)

	out := h.Wait()
	assert.Equal(t, OutcomeFailure, out.Kind)
	assert.ErrorIs(t, out.Err, errBoom)
	assert.EqualValues(t, 1, q.Metrics().Snapshot().Failed)
}

// ----------------------------------------------------------------------------
// Concurrency smoke test
// ----------------------------------------------------------------------------

func TestConcurrentWorkersDrainMixedWorkload(t *testing.T) {
	q := New(Config{MaxQueueSize: 200, Concurrency: 8})
	q.Start()
	defer q.Stop()

	jobCount := 100
	handles := make([]*Handle, 0, jobCount)
	for i := 0; i < jobCount; i++ {
		i := i
		handles = append(handles, q.Enqueue(func(ctx *JobContext) (any, error) {
			if i%10 == 0 {
				return nil, fmt.Errorf("synthetic failure %d", i)
			}
			return i, nil
		}, 2*time.Second, 0))
	}

	var succeeded, failedCount int
	for _, h := range handles {
		out := h.Wait()
		if out.Kind == OutcomeValue {
			succeeded++
		} else {
			failedCount++
		}
	}

	assert.Equal(t, jobCount, succeeded+failedCount)
	snap := q.Metrics().Snapshot()
	assert.EqualValues(t, jobCount, snap.Started)
	assert.EqualValues(t, succeeded, snap.Completed)
	assert.EqualValues(t, failedCount, snap.Failed)
}

// ----------------------------------------------------------------------------
// WaitContext
// ----------------------------------------------------------------------------

func TestWaitContextTimesOutIndependentlyOfJob(t *testing.T) {
	q := New(Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *JobContext) (any, error) {
		ctx.Sleep(200 * time.Millisecond)
		return "late", nil
	}, 0, 0)

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok := h.WaitContext(waitCtx)
	assert.False(t, ok)

	out := h.Wait()
	assert.Equal(t, OutcomeValue, out.Kind)
	assert.Equal(t, "late", out.Value)
}
