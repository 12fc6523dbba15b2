package services

import (
	"context"

	"vigil/internal/dao"
	"vigil/internal/models"
	"vigil/pkg/logger"
)

type ScanServiceMethods interface {
	StartScan(ctx context.Context, req ScanRequest) (*models.Scan, error)
	GetScanStatus(ctx context.Context, scanID string) (*models.Scan, error)
	ListScans(ctx context.Context, limit int) ([]models.Scan, error)
}

type scanService struct {
	orchestrator *Orchestrator
	scanDao      dao.ScanDAO
	logger       *logger.Logger
}

func NewScanService(o *Orchestrator, scanDao dao.ScanDAO, log *logger.Logger) ScanServiceMethods {
	if log == nil {
		log = logger.Default()
	}
	return &scanService{orchestrator: o, scanDao: scanDao, logger: log}
}

func (s *scanService) StartScan(ctx context.Context, req ScanRequest) (*models.Scan, error) {
	return s.orchestrator.StartScan(ctx, req)
}

// GetScanStatus returns the scan with whatever results have been stored so
// far.
func (s *scanService) GetScanStatus(ctx context.Context, scanID string) (*models.Scan, error) {
	scan, err := s.scanDao.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	withEmptyResults(scan)
	return scan, nil
}

// ListScans returns the newest scans first. limit is clamped to the store's
// bounds.
func (s *scanService) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	scans, err := s.scanDao.ListScans(ctx, dao.ClampLimit(limit))
	if err != nil {
		s.logger.WithError(err).Error("Failed to list scans")
		return nil, err
	}
	for i := range scans {
		withEmptyResults(&scans[i])
	}
	return scans, nil
}

// withEmptyResults makes sure result and finding lists encode as [] rather
// than null.
func withEmptyResults(scan *models.Scan) {
	if scan.Results == nil {
		scan.Results = []models.ScanResult{}
	}
	for i := range scan.Results {
		if scan.Results[i].Findings == nil {
			scan.Results[i].Findings = []models.Finding{}
		}
	}
}
