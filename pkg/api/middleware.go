package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuslabs/nexusmem/pkg/metrics"
)

// securityHeaders sets the standard response headers the teacher's echo
// middleware applied, reimplemented for gin.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// requestMetrics records per-route request counts and latency histograms.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status())[:1]+"xx", time.Since(start).Seconds())
	}
}
