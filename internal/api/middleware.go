package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PentesterFlow/OpenProbe/internal/logger"
)

// RequestLogger logs one structured line per handled request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Event(logger.InfoLevel).
			Str("method", method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
