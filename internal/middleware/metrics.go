package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Metrics records request counts and latency per matched route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
