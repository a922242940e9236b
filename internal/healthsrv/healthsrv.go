// Package healthsrv exposes a WorkQueue's liveness and statistics over
// HTTP: /healthz for a liveness probe, /metrics for Prometheus scraping,
// and /queue for a human/JSON view of the current counter snapshot.
package healthsrv

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/magyarmex/heatqueue/internal/metrics"
	"github.com/magyarmex/heatqueue/internal/queue"
	"github.com/magyarmex/heatqueue/pkg/types"
)

// NewRouter builds the gin.Engine serving q's health and stats endpoints.
// collector may be nil to skip mounting /metrics (e.g. when a caller wants
// its own Prometheus registry).
func NewRouter(q *queue.WorkQueue, collector *metrics.Collector, log *zap.SugaredLogger) *gin.Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "heatqueue"})
	})

	r.GET("/queue", func(c *gin.Context) {
		snap := q.Metrics().Snapshot()
		c.JSON(http.StatusOK, types.QueueStats{
			Started:         snap.Started,
			Completed:       snap.Completed,
			Failed:          snap.Failed,
			TimedOut:        snap.TimedOut,
			HeartbeatMissed: snap.HeartbeatMissed,
			SensorThrottles: snap.SensorThrottles,
			SensorAborts:    snap.SensorAborts,
			QueueRejections: snap.QueueRejections,
		})
	})

	if collector != nil {
		handler := metrics.NewHandler(collector)
		r.GET("/metrics", gin.WrapH(handler))
	}

	return r
}

func loggerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debugw("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
