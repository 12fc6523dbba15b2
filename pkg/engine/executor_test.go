package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/models"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
	"vigil/pkg/testutil"
)

func newTestExecutor(obs ModuleObserver) *Executor {
	return NewExecutor(logger.Discard(), nil, obs)
}

func testJob(timeout time.Duration) modules.Job {
	return modules.Job{ScanID: "20260101-000000-abcd1234", Target: "https://example.com", Timeout: timeout}
}

func TestExecutor_Success(t *testing.T) {
	score := 42.0
	m := testutil.StaticModule("nuclei", models.CategoryQuick, models.Finding{
		Severity:  "CRIT",
		Title:     "Log4Shell",
		CVSSScore: &score,
	})

	r := newTestExecutor(nil).Run(context.Background(), m, testJob(time.Second))

	assert.Equal(t, models.StatusSuccess, r.Status)
	assert.Equal(t, "nuclei", r.Module)
	assert.Equal(t, models.CategoryQuick, r.Category)
	assert.Equal(t, "https://example.com", r.Target)
	assert.Equal(t, "20260101-000000-abcd1234", r.ScanID)
	assert.GreaterOrEqual(t, r.DurationMS, int64(0))
	assert.False(t, r.Timestamp.IsZero())
	assert.Nil(t, r.Error)
	assert.Equal(t, 1, r.Data["findings_count"])

	require.Len(t, r.Findings, 1)
	assert.Equal(t, models.SeverityCritical, r.Findings[0].Severity)
	assert.Nil(t, r.Findings[0].CVSSScore)
}

func TestExecutor_TimeoutYieldsNoFindings(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	obs := &recordingObserver{}
	start := time.Now()
	r := newTestExecutor(obs).Run(context.Background(), testutil.BlockingModule("zap", release), testJob(50*time.Millisecond))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.StatusTimeout, r.Status)
	assert.Empty(t, r.Findings)
	require.NotNil(t, r.Error)
	assert.Equal(t, "Scan timed out", *r.Error)
	assert.Equal(t, models.StatusTimeout, obs.statuses["zap"])
}

func TestExecutor_ModuleReportedTimeout(t *testing.T) {
	m := modules.Module{
		Name:     "wapiti",
		Category: models.CategorySecurity,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			return modules.Outcome{
				Status:   models.StatusTimeout,
				Findings: []models.Finding{{Severity: models.SeverityHigh, Title: "partial"}},
			}, nil
		},
	}

	r := newTestExecutor(nil).Run(context.Background(), m, testJob(time.Second))
	assert.Equal(t, models.StatusTimeout, r.Status)
	assert.Empty(t, r.Findings)
}

func TestExecutor_ContextAwareModuleTimesOut(t *testing.T) {
	m := modules.Module{
		Name:     "sqlmap",
		Category: models.CategorySecurity,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			<-ctx.Done()
			return modules.Outcome{}, ctx.Err()
		},
	}

	r := newTestExecutor(nil).Run(context.Background(), m, testJob(20*time.Millisecond))
	assert.Equal(t, models.StatusTimeout, r.Status)
}

func TestExecutor_ErrorAndPanic(t *testing.T) {
	tests := []struct {
		name    string
		module  modules.Module
		message string
	}{
		{"returned error", testutil.FailingModule("nikto", "docker daemon unreachable"), "docker daemon unreachable"},
		{"panic", testutil.PanickingModule("testssl"), "module panicked: scanner exploded"},
		{
			name: "outcome error",
			module: modules.Module{
				Name:     "ffuf",
				Category: models.CategorySecurity,
				Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
					return modules.Outcome{Status: models.StatusError, Error: "wordlist missing"}, nil
				},
			},
			message: "wordlist missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r models.ScanResult
			require.NotPanics(t, func() {
				r = newTestExecutor(nil).Run(context.Background(), tt.module, testJob(time.Second))
			})
			assert.Equal(t, models.StatusError, r.Status)
			assert.Empty(t, r.Findings)
			require.NotNil(t, r.Error)
			assert.Contains(t, *r.Error, tt.message)
		})
	}
}

func TestExecutor_DefaultTimeout(t *testing.T) {
	var got time.Duration
	m := modules.Module{
		Name:     "dns",
		Category: models.CategoryQuick,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			got = job.Timeout
			return modules.Outcome{}, nil
		},
	}

	r := newTestExecutor(nil).Run(context.Background(), m, testJob(0))
	assert.Equal(t, models.StatusSuccess, r.Status)
	assert.Equal(t, DefaultModuleTimeout, got)
}

func TestExecutor_LogsCarryTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logrus.InfoLevel)
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "scan.execute")
	defer span.End()

	e := NewExecutor(log, tp.Tracer("test"), nil)
	r := e.Run(ctx, testutil.StaticModule("nikto", models.CategoryQuick), testJob(time.Second))
	require.Equal(t, models.StatusSuccess, r.Status)

	var finished map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var line map[string]any
		require.NoError(t, json.Unmarshal(raw, &line))
		if line["msg"] == "Module finished" {
			finished = line
		}
	}
	require.NotNil(t, finished)
	assert.Equal(t, trace.SpanContextFromContext(ctx).TraceID().String(), finished["trace_id"])
	assert.Equal(t, "nikto", finished["module"])
}
