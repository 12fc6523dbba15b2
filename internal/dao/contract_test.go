package dao

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
	vigilerrors "vigil/pkg/errors"
)

// runScanDAOContract exercises behaviour every ScanDAO must share.
func runScanDAOContract(t *testing.T, newDAO func(t *testing.T) ScanDAO) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newScan := func(id string, startedAt time.Time) *models.Scan {
		return &models.Scan{
			ScanID:    id,
			Target:    "https://example.com",
			Status:    models.StatusRunning,
			Modules:   []string{"nuclei", "nikto"},
			Timeout:   60,
			StartedAt: startedAt,
		}
	}

	t.Run("create and get", func(t *testing.T) {
		d := newDAO(t)
		require.NoError(t, d.CreateScan(ctx, newScan("20260301-120000-aaaaaaaa", base)))

		got, err := d.GetScan(ctx, "20260301-120000-aaaaaaaa")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRunning, got.Status)
		assert.Equal(t, []string{"nuclei", "nikto"}, got.Modules)
		assert.Nil(t, got.CompletedAt)
		assert.Empty(t, got.Results)

		_, err = d.GetScan(ctx, "missing")
		assert.ErrorIs(t, err, vigilerrors.ErrScanNotFound)
	})

	t.Run("results and findings", func(t *testing.T) {
		d := newDAO(t)
		require.NoError(t, d.CreateScan(ctx, newScan("20260301-120000-bbbbbbbb", base)))

		cve := "CVE-2021-44228"
		ok := &models.ScanResult{
			ScanID:     "20260301-120000-bbbbbbbb",
			Module:     "nuclei",
			Category:   models.CategoryQuick,
			Target:     "https://example.com",
			Timestamp:  base,
			DurationMS: 1200,
			Status:     models.StatusSuccess,
			Data:       map[string]any{"findings_count": float64(2)},
			Findings: []models.Finding{
				{Severity: models.SeverityCritical, Title: "Log4Shell", CVE: &cve},
				{Severity: models.SeverityInfo, Title: "Nginx"},
			},
		}
		failed := &models.ScanResult{
			ScanID:    "20260301-120000-bbbbbbbb",
			Module:    "nikto",
			Category:  models.CategoryQuick,
			Target:    "https://example.com",
			Timestamp: base,
			Status:    models.StatusError,
			Error:     models.StringPtr("exit code 1"),
		}
		require.NoError(t, d.SaveResult(ctx, ok))
		require.NoError(t, d.SaveResult(ctx, failed))

		results, err := d.GetResults(ctx, "20260301-120000-bbbbbbbb")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "nuclei", results[0].Module)
		require.Len(t, results[0].Findings, 2)
		assert.Equal(t, "Log4Shell", results[0].Findings[0].Title)
		assert.Equal(t, cve, *results[0].Findings[0].CVE)
		assert.Equal(t, float64(2), results[0].Data["findings_count"])
		assert.Equal(t, "nikto", results[1].Module)
		assert.Equal(t, "exit code 1", *results[1].Error)
		assert.Empty(t, results[1].Findings)

		scan, err := d.GetScan(ctx, "20260301-120000-bbbbbbbb")
		require.NoError(t, err)
		assert.Len(t, scan.Results, 2)
		assert.Equal(t, 2, scan.FindingsCount())
	})

	t.Run("terminal transition happens once", func(t *testing.T) {
		d := newDAO(t)
		require.NoError(t, d.CreateScan(ctx, newScan("20260301-120000-cccccccc", base)))
		assert.False(t, d.IsTerminal(ctx, "20260301-120000-cccccccc"))

		done := base.Add(time.Minute)
		require.NoError(t, d.MarkTerminal(ctx, "20260301-120000-cccccccc", models.StatusSuccess, done))

		err := d.MarkTerminal(ctx, "20260301-120000-cccccccc", models.StatusError, done.Add(time.Minute))
		assert.ErrorIs(t, err, vigilerrors.ErrInvalidTransition)

		scan, err := d.GetScan(ctx, "20260301-120000-cccccccc")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSuccess, scan.Status)
		require.NotNil(t, scan.CompletedAt)
		assert.True(t, done.Equal(*scan.CompletedAt))
		assert.True(t, d.IsTerminal(ctx, "20260301-120000-cccccccc"))

		assert.ErrorIs(t, d.MarkTerminal(ctx, "missing", models.StatusSuccess, done), vigilerrors.ErrScanNotFound)
		assert.ErrorIs(t, d.MarkTerminal(ctx, "20260301-120000-cccccccc", models.StatusRunning, done), vigilerrors.ErrInvalidTransition)
	})

	t.Run("list newest first", func(t *testing.T) {
		d := newDAO(t)
		require.NoError(t, d.CreateScan(ctx, newScan("20260301-120000-dddddddd", base)))
		require.NoError(t, d.CreateScan(ctx, newScan("20260301-130000-eeeeeeee", base.Add(time.Hour))))
		require.NoError(t, d.CreateScan(ctx, newScan("20260301-110000-ffffffff", base.Add(-time.Hour))))

		scans, err := d.ListScans(ctx, 2)
		require.NoError(t, err)
		require.Len(t, scans, 2)
		assert.Equal(t, "20260301-130000-eeeeeeee", scans[0].ScanID)
		assert.Equal(t, "20260301-120000-dddddddd", scans[1].ScanID)

		scans, err = d.ListScans(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, scans, 3)
	})
}
