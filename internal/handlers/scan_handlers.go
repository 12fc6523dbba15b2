package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vigil/internal/services"
	vigilerrors "vigil/pkg/errors"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
)

type ScanHandler struct {
	scanService services.ScanServiceMethods
	targets     *TargetValidator
	hub         *hub.Hub
	logger      *logger.Logger
}

func NewScanHandler(scanService services.ScanServiceMethods, targets *TargetValidator, h *hub.Hub, log *logger.Logger) *ScanHandler {
	if log == nil {
		log = logger.Default()
	}
	if targets == nil {
		targets = NewTargetValidator(false)
	}
	return &ScanHandler{scanService: scanService, targets: targets, hub: h, logger: log}
}

func (h *ScanHandler) StartScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind scan request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return
	}

	if err := h.targets.Validate(c.Request.Context(), req.Target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	scan, err := h.scanService.StartScan(c.Request.Context(), services.ScanRequest{
		Target:  req.Target,
		Modules: req.Modules,
		Timeout: req.Timeout,
	})
	if err != nil {
		if vigilerrors.IsValidation(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to start scan")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to start scan"})
		return
	}

	c.JSON(http.StatusAccepted, scan)
}

func (h *ScanHandler) GetScanStatus(c *gin.Context) {
	scanID := c.Param("id")
	scan, err := h.scanService.GetScanStatus(c.Request.Context(), scanID)
	if err != nil {
		if errors.Is(err, vigilerrors.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Scan not found"})
			return
		}
		h.logger.WithError(err).WithFields(logger.Fields{"scan_id": scanID}).Error("Failed to get scan")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to get scan"})
		return
	}
	c.JSON(http.StatusOK, scan)
}

func (h *ScanHandler) ListScans(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	scans, err := h.scanService.ListScans(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list scans"})
		return
	}
	c.JSON(http.StatusOK, scans)
}

// StreamScanLogs serves the scan's live events as an event stream until the
// scan completes or the client goes away.
func (h *ScanHandler) StreamScanLogs(c *gin.Context) {
	scanID := c.Param("id")
	if _, err := h.scanService.GetScanStatus(c.Request.Context(), scanID); err != nil {
		if errors.Is(err, vigilerrors.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to get scan"})
		return
	}

	hub.SetSSEHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	err := h.hub.Stream(c.Request.Context(), scanID, func(f hub.Frame) error {
		return hub.WriteFrame(c.Writer, f)
	})
	if err != nil && c.Request.Context().Err() == nil {
		h.logger.WithError(err).WithFields(logger.Fields{"scan_id": scanID}).Warn("Log stream ended with error")
	}
}
