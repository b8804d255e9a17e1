package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger writes one access log line per request. Bodies are never logged:
// they carry patient names and phone numbers.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		log := zerolog.Ctx(c.Request.Context())

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Str("actor", c.GetString(ContextActorID)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("user_agent", c.Request.UserAgent())
		if len(c.Errors) > 0 {
			ev.Str("errors", c.Errors.String())
		}
		ev.Msg("Request processed")
	}
}
