package services

import (
	"context"
	"time"

	"vigil/internal/dao"
	"vigil/internal/models"
	"vigil/pkg/logger"
)

// ScanStatusManager handles terminal scan status transitions.
type ScanStatusManager struct {
	scanDao dao.ScanDAO
	logger  *logger.Logger
	clock   func() time.Time
}

func newScanStatusManager(scanDao dao.ScanDAO, log *logger.Logger, clock func() time.Time) *ScanStatusManager {
	return &ScanStatusManager{scanDao: scanDao, logger: log, clock: clock}
}

// MarkCompleted marks a scan as successfully finished
func (sm *ScanStatusManager) MarkCompleted(ctx context.Context, scanID string) error {
	if err := sm.scanDao.MarkTerminal(ctx, scanID, models.StatusSuccess, sm.clock().UTC()); err != nil {
		return err
	}
	sm.logger.WithFields(logger.Fields{"scan_id": scanID}).Info("Scan completed successfully")
	return nil
}

// MarkFailedWithReason marks a scan as failed and logs why.
func (sm *ScanStatusManager) MarkFailedWithReason(ctx context.Context, scanID, reason string) error {
	if err := sm.scanDao.MarkTerminal(ctx, scanID, models.StatusError, sm.clock().UTC()); err != nil {
		return err
	}
	sm.logger.WithFields(logger.Fields{
		"scan_id": scanID,
		"reason":  reason,
	}).Error("Scan failed")
	return nil
}
