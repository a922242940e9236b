package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magyarmex/heatqueue/internal/queue"
)

func TestNewCollectorDescribesAllCounters(t *testing.T) {
	q := queue.New(queue.Config{MaxQueueSize: 1, Concurrency: 1})
	collector := NewCollector(q)
	require.NotNil(t, collector)

	descCh := make(chan *prometheus.Desc, 16)
	collector.Describe(descCh)
	close(descCh)

	var descs []*prometheus.Desc
	for d := range descCh {
		descs = append(descs, d)
	}
	assert.Len(t, descs, 8)
}

func TestCollectReflectsLiveQueueMetrics(t *testing.T) {
	q := queue.New(queue.Config{MaxQueueSize: 4, Concurrency: 1})
	q.Start()
	defer q.Stop()

	h := q.Enqueue(func(ctx *queue.JobContext) (any, error) {
		return "ok", nil
	}, 0, 0)
	require.Equal(t, queue.OutcomeValue, h.Wait().Kind)

	collector := NewCollector(q)
	metricCh := make(chan prometheus.Metric, 16)
	collector.Collect(metricCh)
	close(metricCh)

	count := 0
	for range metricCh {
		count++
	}
	assert.Equal(t, 8, count)
}

func TestNewHandlerServesPrometheusFormat(t *testing.T) {
	q := queue.New(queue.Config{MaxQueueSize: 1, Concurrency: 1})
	collector := NewCollector(q)
	handler := NewHandler(collector)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "heatqueue_jobs_started_total"))
}
