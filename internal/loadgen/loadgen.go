// Package loadgen builds synthetic queue.JobFunc bodies that hold a CPU
// core busy for a configured duration, pinging their heartbeat at a fixed
// cadence and occasionally failing — the Go analogue of the original
// engine's busy-spin control loop, repurposed from a background daemon
// into discrete jobs a WorkQueue can schedule, throttle, and time out.
package loadgen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/magyarmex/heatqueue/internal/queue"
	"github.com/magyarmex/heatqueue/pkg/types"
)

// Result is what a spin job returns on success.
type Result struct {
	Spec     types.JobSpec
	BusyTime time.Duration
}

// Spin builds a JobFunc that busy-spins for spec.SpinMillis, pinging its
// heartbeat every pingEvery, and occasionally failing at spec.FailureRate
// (0 disables failure injection). It checks the job's context between
// spins so a duration-limit timeout or heartbeat miss can still pre-empt
// it promptly.
func Spin(spec types.JobSpec, pingEvery time.Duration) queue.JobFunc {
	return func(ctx *queue.JobContext) (any, error) {
		total := time.Duration(spec.SpinMillis) * time.Millisecond
		deadline := time.Now().Add(total)
		start := time.Now()

		for {
			select {
			case <-ctx.Context().Done():
				return nil, ctx.Context().Err()
			default:
			}

			ctx.Ping()

			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			step := pingEvery
			if step <= 0 || step > remaining {
				step = remaining
			}
			spinUntil(step)
		}

		if spec.FailureRate > 0 && rand.Float64() < spec.FailureRate {
			return nil, fmt.Errorf("loadgen: synthetic failure for job %q", spec.Name)
		}

		return Result{Spec: spec, BusyTime: time.Since(start)}, nil
	}
}

// spinUntil holds a CPU core busy for d — a tight loop rather than a
// sleep, matching the original engine's _spin, which exists precisely to
// generate real CPU load rather than idle.
func spinUntil(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
