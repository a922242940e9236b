// Package sensorsrc provides queue.SensorReader implementations: fixed
// readings for tests and deterministic demos, and a jittering reader that
// simulates a noisy hardware sensor for load testing the sensor gate.
package sensorsrc

import (
	"context"
	"math/rand"
	"sync"

	"github.com/magyarmex/heatqueue/internal/queue"
)

// Static always reports the same snapshot. Useful for tests and for
// deployments with no real sensor wired up yet.
func Static(snap queue.SensorSnapshot) queue.SensorReader {
	return func(ctx context.Context) (queue.SensorSnapshot, error) {
		return snap, nil
	}
}

// Jitter reports temperature/battery readings that wander around a baseline
// by up to +/-spread on each call, modeling a flaky hardware sensor. It is
// safe for concurrent use by multiple workers racing SensorPolicy.Enforce.
func Jitter(baselineTemperatureC, tempSpread, baselineBatteryPercent, batterySpread float64, seed int64) queue.SensorReader {
	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return func(ctx context.Context) (queue.SensorSnapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		temp := baselineTemperatureC + (rng.Float64()*2-1)*tempSpread
		battery := baselineBatteryPercent + (rng.Float64()*2-1)*batterySpread
		return queue.SensorSnapshot{
			TemperatureC:   &temp,
			BatteryPercent: &battery,
		}, nil
	}
}

// FixedTemperature reports only a temperature reading, leaving battery
// unknown — unknown fields never trigger a violation in queue.SensorPolicy.
func FixedTemperature(celsius float64) queue.SensorReader {
	return func(ctx context.Context) (queue.SensorSnapshot, error) {
		c := celsius
		return queue.SensorSnapshot{TemperatureC: &c}, nil
	}
}

// FixedBattery reports only a battery reading.
func FixedBattery(percent float64) queue.SensorReader {
	return func(ctx context.Context) (queue.SensorSnapshot, error) {
		p := percent
		return queue.SensorSnapshot{BatteryPercent: &p}, nil
	}
}
