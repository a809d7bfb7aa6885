// Prometheus instrumentation for HTTP traffic.
//
// Labels stay low-cardinality on purpose: method, the registered route
// pattern (never the raw URL of a matched route), and the numeric status
// code. Unmatched requests fall back to the raw path, which is bounded by
// whatever clients probe for.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is deliberately absent here to keep histogram cardinality down.
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	reqInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Buckets span small JSON error bodies up to full chat transcripts.
	respBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
				1 << 20, 2 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	// sseStreams counts completed server-sent-event responses per route, the
	// assistant's streaming answers being the only producer today.
	sseStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_streams_total",
			Help: "Total number of completed server-sent-event responses.",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(reqTotal, reqDuration, reqInFlight, respBytes, sseStreams)
}

// Metrics instruments each request: a counter by method/path/status, a
// latency histogram, an in-flight gauge, a response-size histogram, and a
// counter of SSE responses (recognized by their Content-Type). Mount the
// scrape endpoint separately:
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqInFlight.Inc()
		defer reqInFlight.Dec()

		c.Next()

		method := c.Request.Method
		path := routePath(c)

		reqTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		reqDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			// Hijacked or unfinished responses report -1 and are skipped.
			respBytes.WithLabelValues(method, path).Observe(float64(size))
		}
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			sseStreams.WithLabelValues(path).Inc()
		}
	}
}
