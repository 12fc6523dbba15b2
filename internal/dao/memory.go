package dao

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vigil/internal/models"
	vigilerrors "vigil/pkg/errors"
)

// MemoryScanDAO keeps scans in process memory. It backs the one-shot CLI
// and tests; nothing survives a restart.
type MemoryScanDAO struct {
	mu       sync.RWMutex
	scans    map[string]*models.Scan
	results  map[string][]models.ScanResult
	nextID   uint
	saveHook func(*models.ScanResult) error
}

func NewMemoryScanDAO() *MemoryScanDAO {
	return &MemoryScanDAO{
		scans:   make(map[string]*models.Scan),
		results: make(map[string][]models.ScanResult),
	}
}

// FailSavesWith makes SaveResult return the hook's error when it is non-nil.
func (m *MemoryScanDAO) FailSavesWith(hook func(*models.ScanResult) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveHook = hook
}

func (m *MemoryScanDAO) CreateScan(ctx context.Context, scan *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.scans[scan.ScanID]; exists {
		return fmt.Errorf("create scan %s: duplicate scan id", scan.ScanID)
	}
	m.nextID++
	scan.ID = m.nextID

	stored := *scan
	stored.Results = nil
	stored.Modules = append([]string(nil), scan.Modules...)
	m.scans[scan.ScanID] = &stored
	return nil
}

func (m *MemoryScanDAO) GetScan(ctx context.Context, scanID string) (*models.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scans[scanID]
	if !ok {
		return nil, vigilerrors.ErrScanNotFound
	}
	out := m.copyScanLocked(s)
	return &out, nil
}

func (m *MemoryScanDAO) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Scan, 0, len(m.scans))
	for _, s := range m.scans {
		out = append(out, m.copyScanLocked(s))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryScanDAO) SaveResult(ctx context.Context, result *models.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveHook != nil {
		if err := m.saveHook(result); err != nil {
			return fmt.Errorf("save %s result for scan %s: %w", result.Module, result.ScanID, err)
		}
	}
	if _, ok := m.scans[result.ScanID]; !ok {
		return fmt.Errorf("save %s result: %w", result.Module, vigilerrors.ErrScanNotFound)
	}

	m.nextID++
	result.ID = m.nextID
	for i := range result.Findings {
		m.nextID++
		result.Findings[i].ID = m.nextID
		result.Findings[i].ScanResultID = result.ID
		result.Findings[i].ScanID = result.ScanID
	}

	m.results[result.ScanID] = append(m.results[result.ScanID], copyResult(*result))
	return nil
}

func (m *MemoryScanDAO) GetResults(ctx context.Context, scanID string) ([]models.ScanResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyResultsLocked(scanID), nil
}

func (m *MemoryScanDAO) MarkTerminal(ctx context.Context, scanID string, status models.Status, at time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", vigilerrors.ErrInvalidTransition, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scans[scanID]
	if !ok {
		return vigilerrors.ErrScanNotFound
	}
	if s.Status != models.StatusRunning {
		return fmt.Errorf("%w: scan %s already finished", vigilerrors.ErrInvalidTransition, scanID)
	}
	completed := at.UTC()
	s.Status = status
	s.CompletedAt = &completed
	return nil
}

func (m *MemoryScanDAO) IsTerminal(ctx context.Context, scanID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scans[scanID]
	return ok && s.Status.IsTerminal()
}

func (m *MemoryScanDAO) copyScanLocked(s *models.Scan) models.Scan {
	out := *s
	out.Modules = append([]string(nil), s.Modules...)
	if s.CompletedAt != nil {
		c := *s.CompletedAt
		out.CompletedAt = &c
	}
	out.Results = m.copyResultsLocked(s.ScanID)
	return out
}

func (m *MemoryScanDAO) copyResultsLocked(scanID string) []models.ScanResult {
	stored := m.results[scanID]
	out := make([]models.ScanResult, len(stored))
	for i, r := range stored {
		out[i] = copyResult(r)
	}
	return out
}

func copyResult(r models.ScanResult) models.ScanResult {
	if r.Data != nil {
		data := make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			data[k] = v
		}
		r.Data = data
	}
	r.Findings = append([]models.Finding(nil), r.Findings...)
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}
