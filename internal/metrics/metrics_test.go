package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
	"vigil/pkg/hub"
)

func TestMetrics_ScanLifecycle(t *testing.T) {
	m := New()

	m.ScanStarted()
	m.ScanStarted()
	m.ScanFinished(models.StatusSuccess)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scansStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scansRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scansFinished.WithLabelValues("success")))
}

func TestMetrics_ModulesAndFindings(t *testing.T) {
	m := New()

	m.ModuleFinished("nuclei", models.StatusSuccess, 3*time.Second)
	m.ModuleFinished("nuclei", models.StatusTimeout, time.Minute)
	m.FindingsRecorded("nuclei", []models.Finding{
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityLow},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.moduleRuns.WithLabelValues("nuclei", "timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.findingsTotal.WithLabelValues("nuclei", "high")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.moduleDuration))
}

func TestMetrics_HubObserver(t *testing.T) {
	m := New()
	h := hub.New(hub.Options{Observer: m})

	sub := h.Subscribe(context.Background(), "s1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logSubscribers))

	h.Publish("s1", hub.Info("nuclei", "starting"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("info")))

	sub.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.logSubscribers))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ScanStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vigil_scans_started_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
