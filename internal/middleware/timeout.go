package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

type TimeoutConfig struct {
	Duration time.Duration
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Duration: 30 * time.Second,
	}
}

// Timeout bounds the request context. Handlers run on the request goroutine;
// storage calls observe the deadline and surface it as an error.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	if config.Duration <= 0 {
		config = DefaultTimeoutConfig()
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Duration)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
