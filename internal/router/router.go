package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler also exposes routes that skip authentication.
type PublicHandler interface {
	Handler
	RegisterPublicRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	AllowOrigins     []string
	HSTSMaxAge       int
	Release          bool
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   Handler
	handlers []Handler
	gatherer prometheus.Gatherer
}

func NewRouter(
	config RouterConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	auth *middleware.AuthMiddleware,
	health Handler,
	handlers ...Handler,
) *Router {
	if config.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(
		middleware.RequestID(log),
		middleware.Recovery(),
		middleware.SecurityHeaders(config.HSTSMaxAge),
		middleware.CORS(middleware.CORSConfig{AllowOrigins: config.AllowOrigins}),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.ErrorHandler(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.SizeLimit(config.MaxBodyBytes),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		handlers: handlers,
		gatherer: gatherer,
	}
}

func (r *Router) Setup() {
	if r.gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api/v1")
	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	for _, h := range r.handlers {
		if p, ok := h.(PublicHandler); ok {
			p.RegisterPublicRoutes(api)
		}
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.handlers {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
