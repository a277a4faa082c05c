package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/blobs"
	"cvalue-web/internal/orders"
	"cvalue-web/internal/preferences"
	"cvalue-web/internal/preview"
	"cvalue-web/internal/services/health"
	"cvalue-web/internal/shared/config"
	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/shared/server/middleware"
)

// APIBasePath prefixes every API route.
const APIBasePath = "/api/v1"

// RouterDeps are the handlers mounted on the router.
type RouterDeps struct {
	Config             config.Config
	OrderHandler       *orders.Handler
	PreviewHandler     *preview.Handler
	BlobHandler        *blobs.Handler
	PreferencesHandler *preferences.Handler
	HealthHandler      *health.Handler
	RateLimiter        *middleware.RateLimiter
}

// DefaultRateLimits are the per-visitor limits applied by NewRouter.
var DefaultRateLimits = map[string]middleware.RateLimitRule{
	"DEFAULT":                   {Rate: 10, Burst: 40},
	middleware.RateLimitUpload:  {Rate: 0.2, Burst: 3},
	middleware.RateLimitPayment: {Rate: 0.5, Burst: 5},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Visitor(deps.Config.Env == "production"),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    DefaultRateLimits,
			GroupFor: rateLimitGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group(APIBasePath)
	if deps.HealthHandler != nil {
		deps.HealthHandler.RegisterRoutes(api)
	}
	registerMeRoutes(api, deps.Config)
	if deps.OrderHandler != nil {
		deps.OrderHandler.RegisterRoutes(api)
	}
	if deps.PreviewHandler != nil {
		deps.PreviewHandler.RegisterRoutes(api)
	}
	if deps.BlobHandler != nil {
		deps.BlobHandler.RegisterRoutes(api)
	}
	if deps.PreferencesHandler != nil {
		deps.PreferencesHandler.RegisterRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	route := c.FullPath()
	switch {
	case strings.HasPrefix(route, APIBasePath+"/orders/"):
		return middleware.RateLimitUpload
	case strings.HasSuffix(route, "/payments") && c.Request.Method == "POST":
		return middleware.RateLimitPayment
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
