package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vigil/internal/config"
	"vigil/internal/handlers"
	"vigil/internal/services"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	ScanService   services.ScanServiceMethods
	ConfigService services.ConfigServiceMethods
	Hub           *hub.Hub
	Targets       *handlers.TargetValidator
	// Ping backs the readiness probe. Optional.
	Ping func(ctx context.Context) error
	// Metrics is served at /metrics when set.
	Metrics   http.Handler
	RateLimit config.RateLimitConfig
	Logger    *logger.Logger
}

func InitRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logger.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(d.Logger))

	api := router.Group("/api")
	{
		InitScanRoutes(api, d)
		InitConfigRoutes(api, d)
	}

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "Not found"})
	})

	return router
}
