package routes

import (
	"github.com/gin-gonic/gin"

	"vigil/internal/handlers"
)

func InitConfigRoutes(router *gin.RouterGroup, d Deps) {
	configHandler := handlers.NewConfigHandler(d.ConfigService)
	health := handlers.NewHealthHandler(d.Ping)

	router.GET("/modules", configHandler.GetScanModules)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
}
