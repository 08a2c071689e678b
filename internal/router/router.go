package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/lakany/clinic-api/internal/handler"
	"github.com/lakany/clinic-api/internal/middleware"
	"github.com/lakany/clinic-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler also exposes routes that need no token
type PublicHandler interface {
	Handler
	RegisterPublicRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Production     bool
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type Router struct {
	engine       *gin.Engine
	auth         middleware.Authenticator
	appointmentH PublicHandler
	authH        Handler
	healthH      Handler
	config       RouterConfig
}

func NewRouter(
	auth middleware.Authenticator,
	appointmentH PublicHandler,
	authH Handler,
	healthH Handler,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	handler.UseJSONFieldNames()

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig(config.AllowedOrigins)),
		middleware.SecurityHeaders(config.MaxBodyBytes, config.Production),
	)
	if config.RateLimit > 0 {
		engine.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}).RateLimit())
	}
	// Timeout runs inside ErrorHandler so an expired request answers 504
	// even when the handler recorded the deadline as an error
	engine.Use(
		middleware.ErrorHandler(!config.Production),
		middleware.Timeout(config.RequestTimeout),
	)

	return &Router{
		engine:       engine,
		auth:         auth,
		appointmentH: appointmentH,
		authH:        authH,
		healthH:      healthH,
		config:       config,
	}
}

func (r *Router) Setup() *gin.Engine {
	api := r.engine.Group("/api/v1")

	r.healthH.RegisterRoutes(api)
	r.authH.RegisterRoutes(api)
	r.appointmentH.RegisterPublicRoutes(api)

	protected := api.Group("")
	protected.Use(middleware.Authenticate(r.auth))
	r.appointmentH.RegisterRoutes(protected)

	return r.engine
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
