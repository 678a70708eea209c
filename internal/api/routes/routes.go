package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/birdeye-sniper/sniper_service/internal/api/handlers"
	"github.com/birdeye-sniper/sniper_service/internal/api/middleware"
	"github.com/birdeye-sniper/sniper_service/pkg/auth"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

// Options configures the ops router
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
}

// SetupRoutes configures the ops API
func SetupRoutes(core *handlers.CoreHandlers, opts Options, log *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders())

	// health checks and scraping stay outside the rate limit
	router.GET("/health", core.Health)
	router.GET("/live", core.Live)
	router.GET("/metrics", core.Metrics())

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(opts.RateLimitPerMin))
	v1.Use(middleware.Authentication(opts.JWTSecret, log))
	{
		v1.GET("/status", core.Status)
		v1.GET("/wallets", core.Wallets)
		v1.POST("/health/run", middleware.RequireRole(auth.RoleOperator), core.RunHealth)
	}

	return router
}
