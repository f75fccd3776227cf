package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	googleauth "dme-backend/internal/auth"
	"dme-backend/internal/documents"
	"dme-backend/internal/extraction"
	"dme-backend/internal/orders"
	"dme-backend/internal/services/health"
	"dme-backend/internal/shared/auth"
	"dme-backend/internal/shared/config"
	"dme-backend/internal/shared/metrics"
	"dme-backend/internal/shared/server/middleware"
	"dme-backend/internal/shared/server/respond"
	"dme-backend/internal/users"
)

const pollingRateGroup = "POLLING"

// RouterDeps carries the wired handlers the router registers.
type RouterDeps struct {
	Config            config.Config
	Tokens            *auth.Manager
	Health            *health.Service
	UserHandler       *users.Handler
	OrderHandler      *orders.Handler
	DocumentHandler   *documents.Handler
	ExtractionHandler *extraction.Handler
	ActivityHandler   *activities.Handler
	GoogleAuth        *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(rateLimitConfig(deps.Config)),
		middleware.Auth(deps.Tokens),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Health))

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	deps.UserHandler.RegisterRoutes(api)
	deps.OrderHandler.RegisterRoutes(api)
	deps.DocumentHandler.RegisterRoutes(api)
	deps.ExtractionHandler.RegisterRoutes(api)
	deps.ActivityHandler.RegisterRoutes(api)

	return r
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := svc.Status(c.Request.Context())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	}
}

// rateLimitConfig puts the order status endpoint in its own bucket so polling
// clients are limited separately from the rest of the API.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT":        {Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
			pollingRateGroup: {Rate: cfg.RateLimitRPS * 2, Burst: cfg.RateLimitBurst * 2},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet && strings.HasSuffix(c.FullPath(), "/status") {
				return pollingRateGroup
			}
			return ""
		},
	}
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
