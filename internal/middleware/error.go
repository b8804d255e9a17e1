package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

// ErrorHandler renders the last error a handler attached with c.Error when
// nothing has been written yet.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		log := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			if apperrors.KindOf(e.Err) == apperrors.KindInternal {
				log.Error().Err(e.Err).Str("path", c.Request.URL.Path).Msg("Request error")
			}
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
