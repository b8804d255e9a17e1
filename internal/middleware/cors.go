package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig lists the browser origins allowed to call the API, typically
// the reception desk app and the patient visit tracking page.
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       int
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Origin", "Content-Type", "Accept", "Authorization", HeaderXActorID, HeaderXRequestID,
	}, ", ")
	corsExpose = strings.Join([]string{HeaderXRequestID, "X-Replay-Reached"}, ", ")
)

// CORS answers preflights and echoes allowed origins. Requests from other
// origins get no CORS headers and the browser blocks them.
func CORS(config CORSConfig) gin.HandlerFunc {
	if config.MaxAge <= 0 {
		config.MaxAge = 600
	}
	allowAll := false
	allowed := make(map[string]struct{}, len(config.AllowOrigins))
	for _, o := range config.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		_, ok := allowed[origin]
		if !ok && !allowAll {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Expose-Headers", corsExpose)

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
