// Package metrics 汇总 HTTP、任务队列与 LaTeX 渲染的 Prometheus 指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "texresume"

// 未匹配任何路由的请求统一记为该 path，避免任意 URL 撑爆标签基数。
const unmatchedPath = "unmatched"

var (
	httpLabels = []string{"method", "path", "status"}

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP 请求耗时分布（秒）。",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		httpLabels,
	)

	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP 请求总数。",
		},
		httpLabels,
	)

	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "当前正在处理的 HTTP 请求数量。",
		},
	)
)

// GinMiddleware 按路由模板记录请求数、耗时与并发数。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		values := []string{c.Request.Method, path, strconv.Itoa(c.Writer.Status())}
		requestDuration.WithLabelValues(values...).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(values...).Inc()
	}
}
