package routes

import (
	"github.com/gin-gonic/gin"

	"vigil/internal/handlers"
)

func InitScanRoutes(router *gin.RouterGroup, d Deps) {
	h := handlers.NewScanHandler(d.ScanService, d.Targets, d.Hub, d.Logger)

	scanRoutes := router.Group("/scans")
	{
		scanRoutes.POST("", handlers.RateLimit(d.RateLimit.RPS, d.RateLimit.Burst), h.StartScan)
		scanRoutes.GET("", h.ListScans)
		scanRoutes.GET("/:id", h.GetScanStatus)
		scanRoutes.GET("/:id/logs", h.StreamScanLogs)
	}
}
