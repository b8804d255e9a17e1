package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestIDReusesCallerID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(logger.Nop()))
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := serve(engine, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "abc-123", w.Body.String())

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(HeaderXRequestID), 36)
}

func TestRateLimitSheds(t *testing.T) {
	engine := gin.New()
	engine.Use(NewRateLimiter(RateLimiterConfig{Rate: 0, Burst: 2}).RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(engine, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestSizeLimitRejectsLargeBodies(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(8))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too many bytes")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS(CORSConfig{AllowOrigins: []string{"https://track.example.com/"}}))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		method string
		origin string
		code   int
		allow  string
	}{
		{"allowed preflight", http.MethodOptions, "https://track.example.com", http.StatusNoContent, "https://track.example.com"},
		{"allowed request", http.MethodGet, "https://track.example.com", http.StatusNoContent, "https://track.example.com"},
		{"foreign preflight", http.MethodOptions, "https://evil.example.com", http.StatusForbidden, ""},
		{"foreign request", http.MethodGet, "https://evil.example.com", http.StatusNoContent, ""},
		{"no origin", http.MethodGet, "", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := serve(engine, req)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.allow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	engine := gin.New()
	engine.Use(SecurityHeaders(0))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	engine = gin.New()
	engine.Use(SecurityHeaders(3600))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w = serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "max-age=3600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}
