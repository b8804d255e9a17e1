package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultMaxBodySize int64 = 1 << 20

// SizeLimit caps request bodies. Reads past the limit fail and the binding
// error surfaces as a validation error.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
