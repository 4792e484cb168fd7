package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger emits one structured log line per handled request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	}
}
