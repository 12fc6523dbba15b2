package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vigil/internal/services"
)

type ConfigHandler struct {
	configService services.ConfigServiceMethods
}

func NewConfigHandler(configService services.ConfigServiceMethods) *ConfigHandler {
	return &ConfigHandler{configService: configService}
}

func (h *ConfigHandler) GetScanModules(c *gin.Context) {
	c.JSON(http.StatusOK, h.configService.GetScanModules())
}
