package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

const (
	HeaderXRequestID = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID tags every request with an ID, reusing the caller's when sent,
// and attaches a request-scoped zerolog logger to the request context.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = uuid.New().String()
		}

		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)

		scoped := log.Zerolog().With().Str(ContextRequestID, rid).Logger()
		c.Request = c.Request.WithContext(scoped.WithContext(c.Request.Context()))
		c.Next()
	}
}
