package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"vigil/internal/models"
	vigilerrors "vigil/pkg/errors"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ScanDAO is the scan state store. Results are written once and never
// updated; a scan's status only moves from running to a terminal state.
type ScanDAO interface {
	CreateScan(ctx context.Context, scan *models.Scan) error
	GetScan(ctx context.Context, scanID string) (*models.Scan, error)
	ListScans(ctx context.Context, limit int) ([]models.Scan, error)
	SaveResult(ctx context.Context, result *models.ScanResult) error
	GetResults(ctx context.Context, scanID string) ([]models.ScanResult, error)
	MarkTerminal(ctx context.Context, scanID string, status models.Status, at time.Time) error
	IsTerminal(ctx context.Context, scanID string) bool
}

type scanDAO struct {
	db     *gorm.DB
	tracer trace.Tracer
}

func NewScanDAO(db *gorm.DB) ScanDAO {
	return &scanDAO{db: db, tracer: otel.Tracer("vigil/dao")}
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit < 1 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}

func (dao *scanDAO) CreateScan(ctx context.Context, scan *models.Scan) error {
	ctx, span := dao.tracer.Start(ctx, "dao.create_scan", trace.WithAttributes(attribute.String("scan.id", scan.ScanID)))
	defer span.End()

	if err := dao.db.WithContext(ctx).Omit("Results").Create(scan).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("create scan %s: %w", scan.ScanID, err)
	}
	return nil
}

func (dao *scanDAO) GetScan(ctx context.Context, scanID string) (*models.Scan, error) {
	var scan models.Scan
	err := dao.db.WithContext(ctx).
		Preload("Results", orderByID).
		Preload("Results.Findings", orderByID).
		Where("scan_id = ?", scanID).
		First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vigilerrors.ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", scanID, err)
	}
	return &scan, nil
}

func (dao *scanDAO) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	var scans []models.Scan
	err := dao.db.WithContext(ctx).
		Preload("Results", orderByID).
		Preload("Results.Findings", orderByID).
		Order("started_at desc").
		Limit(ClampLimit(limit)).
		Find(&scans).Error
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return scans, nil
}

// SaveResult writes a result and its findings in one transaction.
func (dao *scanDAO) SaveResult(ctx context.Context, result *models.ScanResult) error {
	ctx, span := dao.tracer.Start(ctx, "dao.save_result", trace.WithAttributes(
		attribute.String("scan.id", result.ScanID),
		attribute.String("module.name", result.Module),
		attribute.Int("findings", len(result.Findings)),
	))
	defer span.End()

	for i := range result.Findings {
		result.Findings[i].ScanID = result.ScanID
	}

	err := dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(result).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("save %s result for scan %s: %w", result.Module, result.ScanID, err)
	}
	return nil
}

func (dao *scanDAO) GetResults(ctx context.Context, scanID string) ([]models.ScanResult, error) {
	var results []models.ScanResult
	err := dao.db.WithContext(ctx).
		Preload("Findings", orderByID).
		Where("scan_id = ?", scanID).
		Order("id asc").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("get results for scan %s: %w", scanID, err)
	}
	return results, nil
}

// MarkTerminal moves a running scan to status. The update is conditional so
// completed_at is only ever set once.
func (dao *scanDAO) MarkTerminal(ctx context.Context, scanID string, status models.Status, at time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", vigilerrors.ErrInvalidTransition, status)
	}

	ctx, span := dao.tracer.Start(ctx, "dao.mark_terminal", trace.WithAttributes(
		attribute.String("scan.id", scanID),
		attribute.String("scan.status", string(status)),
	))
	defer span.End()

	res := dao.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("scan_id = ? AND status = ?", scanID, models.StatusRunning).
		Updates(map[string]any{"status": status, "completed_at": at.UTC()})
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("mark scan %s %s: %w", scanID, status, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := dao.db.WithContext(ctx).Model(&models.Scan{}).Where("scan_id = ?", scanID).Count(&count).Error; err != nil {
		return fmt.Errorf("mark scan %s %s: %w", scanID, status, err)
	}
	if count == 0 {
		return vigilerrors.ErrScanNotFound
	}
	return fmt.Errorf("%w: scan %s already finished", vigilerrors.ErrInvalidTransition, scanID)
}

// IsTerminal reports whether the scan exists and has finished. It backs the
// hub's completion lookup, so errors read as false.
func (dao *scanDAO) IsTerminal(ctx context.Context, scanID string) bool {
	var scan models.Scan
	err := dao.db.WithContext(ctx).Select("status").Where("scan_id = ?", scanID).First(&scan).Error
	return err == nil && scan.Status.IsTerminal()
}
