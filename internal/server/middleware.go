package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/perfsight/internal/metrics"
)

// maxQueryLogLen is the maximum length for logged query strings before truncation.
const maxQueryLogLen = 200

// slowRequestThreshold is the duration above which requests are logged at WARN level.
// Synchronous analysis requests routinely exceed it; polling should not.
const slowRequestThreshold = 2 * time.Second

// LoggingMiddleware logs every request with timing and records it in the
// collector under its route pattern.
func LoggingMiddleware(logger *slog.Logger, collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		collector.RecordRequest(c.Request.Method, route, status, duration)

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, "query", truncate(q, maxQueryLogLen))
		}

		switch {
		case len(c.Errors) > 0:
			attrs = append(attrs, "error", c.Errors.String())
			logger.Error("request failed", attrs...)
		case status >= 500:
			logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold:
			logger.Warn("slow request", attrs...)
		default:
			logger.Debug("request completed", attrs...)
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
