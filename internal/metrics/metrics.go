// ============================================================================
// HeatQueue Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Expose work queue counters for Prometheus scraping
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration): the queue's own Metrics bundle
//   already tracks every decisive event atomically, so this package is a
//   thin translation layer rather than a second source of truth.
//
// Metric Categories:
//
//   Job Counters - Cumulative, monotonically increasing:
//     - heatqueue_jobs_started_total
//     - heatqueue_jobs_completed_total
//     - heatqueue_jobs_failed_total
//     - heatqueue_jobs_timed_out_total
//     - heatqueue_jobs_heartbeat_missed_total
//     - heatqueue_sensor_throttles_total
//     - heatqueue_sensor_aborts_total
//     - heatqueue_queue_rejections_total
//
// Prometheus Query Examples:
//
//   # Completion rate
//   rate(heatqueue_jobs_completed_total[1m])
//
//   # Timeout ratio
//   rate(heatqueue_jobs_timed_out_total[5m]) / rate(heatqueue_jobs_started_total[5m])
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus. Format: Prometheus text.
//
// ============================================================================

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magyarmex/heatqueue/internal/queue"
)

// Collector adapts a queue.WorkQueue's Metrics bundle to the
// prometheus.Collector interface. It holds no counters of its own: every
// value is read live from the queue at scrape time, so there is exactly one
// place (queue.Metrics) that increments anything.
type Collector struct {
	q *queue.WorkQueue

	started         *prometheus.Desc
	completed       *prometheus.Desc
	failed          *prometheus.Desc
	timedOut        *prometheus.Desc
	heartbeatMissed *prometheus.Desc
	sensorThrottles *prometheus.Desc
	sensorAborts    *prometheus.Desc
	queueRejections *prometheus.Desc
}

// NewCollector builds a Collector bound to q. Register it with
// prometheus.MustRegister (or a dedicated prometheus.Registry) before
// serving /metrics.
func NewCollector(q *queue.WorkQueue) *Collector {
	return &Collector{
		q: q,
		started: prometheus.NewDesc(
			"heatqueue_jobs_started_total", "Total number of jobs admitted to a worker", nil, nil),
		completed: prometheus.NewDesc(
			"heatqueue_jobs_completed_total", "Total number of jobs that returned a value", nil, nil),
		failed: prometheus.NewDesc(
			"heatqueue_jobs_failed_total", "Total number of jobs that returned an error or were aborted by the sensor gate", nil, nil),
		timedOut: prometheus.NewDesc(
			"heatqueue_jobs_timed_out_total", "Total number of jobs cancelled by their duration limit", nil, nil),
		heartbeatMissed: prometheus.NewDesc(
			"heatqueue_jobs_heartbeat_missed_total", "Total number of jobs cancelled for a missed heartbeat", nil, nil),
		sensorThrottles: prometheus.NewDesc(
			"heatqueue_sensor_throttles_total", "Total number of sensor-gated admission retries", nil, nil),
		sensorAborts: prometheus.NewDesc(
			"heatqueue_sensor_aborts_total", "Total number of jobs aborted before dispatch by the sensor gate", nil, nil),
		queueRejections: prometheus.NewDesc(
			"heatqueue_queue_rejections_total", "Total number of enqueue attempts rejected for lack of capacity", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.started
	ch <- c.completed
	ch <- c.failed
	ch <- c.timedOut
	ch <- c.heartbeatMissed
	ch <- c.sensorThrottles
	ch <- c.sensorAborts
	ch <- c.queueRejections
}

// Collect implements prometheus.Collector, reading a fresh snapshot on
// every scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.q.Metrics().Snapshot()
	ch <- prometheus.MustNewConstMetric(c.started, prometheus.CounterValue, float64(snap.Started))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(snap.Completed))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(snap.Failed))
	ch <- prometheus.MustNewConstMetric(c.timedOut, prometheus.CounterValue, float64(snap.TimedOut))
	ch <- prometheus.MustNewConstMetric(c.heartbeatMissed, prometheus.CounterValue, float64(snap.HeartbeatMissed))
	ch <- prometheus.MustNewConstMetric(c.sensorThrottles, prometheus.CounterValue, float64(snap.SensorThrottles))
	ch <- prometheus.MustNewConstMetric(c.sensorAborts, prometheus.CounterValue, float64(snap.SensorAborts))
	ch <- prometheus.MustNewConstMetric(c.queueRejections, prometheus.CounterValue, float64(snap.QueueRejections))
}

// NewHandler registers collector against a private registry and returns an
// http.Handler serving it, so callers can mount it on their own mux (e.g.
// internal/healthsrv) instead of the default global registerer.
func NewHandler(collector *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
