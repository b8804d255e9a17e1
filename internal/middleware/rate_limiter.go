package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
	}
}

// RateLimit sheds load once the shared token bucket is empty.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow() {
			httputil.RespondWithError(c, apperrors.RateLimited())
			return
		}
		c.Next()
	}
}
