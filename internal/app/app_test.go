package app

import (
	"context"
	"os"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/dao"
	"vigil/internal/metrics"
	"vigil/internal/models"
	"vigil/internal/services"
	"vigil/pkg/hooks"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
	"vigil/pkg/runner"
	"vigil/pkg/testutil"
)

const catalogue = `
execution_mode: sequential
default_modules: [nuclei, nikto]
modules:
  - name: nuclei
    category: quick
    container: security-scanner-nuclei
    args: ["nuclei", "-u", "{{target}}", "-jsonl", "-silent"]
    parser: nuclei
  - name: nikto
    category: quick
    container: security-scanner-nikto
    args: ["nikto", "-h", "{{host}}"]
    parser: nikto
`

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Scan: config.ScanConfig{
			OutputDir:      t.TempDir(),
			WorkDir:        t.TempDir(),
			DefaultTimeout: 60,
			MaxConcurrent:  1,
		},
		Hub:    config.HubConfig{Keepalive: time.Second},
		Notify: config.NotifyConfig{MinSeverity: "high"},
	}
}

func TestNewCore_RunsScanEndToEnd(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	cat, err := modules.ParseCatalogue([]byte(catalogue))
	require.NoError(t, err)

	mock := testutil.NewMockCommandRunner()
	mock.SetResponse("docker exec security-scanner-nuclei", testutil.CommandResponse{
		Result: runner.ExecResult{Stdout: `{"template-id":"CVE-2021-44228","info":{"name":"Log4j RCE","severity":"critical"}}` + "\n"},
	})
	mock.SetResponse("docker exec security-scanner-nikto", testutil.CommandResponse{
		Result: runner.ExecResult{Stdout: "+ Server: nginx/1.18 appears to be outdated\n+ /admin/: Possible exploit available.\n"},
	})

	cfg := testConfig(t)
	store := dao.NewMemoryScanDAO()
	m := metrics.New()

	core, err := NewCore(Options{
		Config:           cfg,
		Store:            store,
		Logger:           logger.Discard(),
		Metrics:          m,
		Runner:           mock,
		Catalogue:        cat,
		CompletionLookup: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"nuclei", "nikto", "dns"}, core.Registry.Names())
	require.Len(t, core.Hooks, 1)
	assert.IsType(t, &hooks.CombineOutput{}, core.Hooks[0])

	scan, task, err := core.Orchestrator.StartScanTask(context.Background(), services.ScanRequest{Target: "https://example.com"})
	require.NoError(t, err)

	ctx, cancel := testutil.WithTimeout(t, 5*time.Second)
	defer cancel()
	status, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, status)

	stored, err := store.GetScan(ctx, scan.ScanID)
	require.NoError(t, err)
	require.Len(t, stored.Results, 2)
	assert.Equal(t, "nuclei", stored.Results[0].Module)
	assert.Len(t, stored.Results[0].Findings, 1)
	assert.Len(t, stored.Results[1].Findings, 2)

	runs, err := promtestutil.GatherAndCount(m.Registry(), "vigil_module_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, runs)

	_, err = os.Stat(cfg.Scan.WorkDir + "/" + scan.ScanID + "/findings.jsonl")
	assert.NoError(t, err)

	// late observers get connected and then the end of the stream
	sub := core.Hub.Subscribe(ctx, scan.ScanID)
	_, err = sub.Next(ctx)
	require.NoError(t, err)
	_, err = sub.Next(ctx)
	assert.Error(t, err)

	require.NoError(t, core.Close(ctx))
}

func TestNewCore_ExecutionModeOverride(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	cat, err := modules.ParseCatalogue([]byte(catalogue))
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Scan.ExecutionMode = modules.ExecutionParallel
	cfg.Scan.WorkDir = ""

	core, err := NewCore(Options{
		Config:    cfg,
		Store:     dao.NewMemoryScanDAO(),
		Logger:    logger.Discard(),
		Runner:    testutil.NewMockCommandRunner(),
		Catalogue: cat,
	})
	require.NoError(t, err)
	defer core.Close(context.Background())

	assert.Equal(t, modules.ExecutionParallel, core.Engine.Strategy().Name())
	assert.Equal(t, modules.ExecutionParallel, core.Catalogue.ExecutionMode)
	assert.Empty(t, core.Hooks)
}

func TestNewCore_MissingCatalogue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scan.ModulesFile = cfg.Scan.WorkDir + "/missing.yaml"

	_, err := NewCore(Options{Config: cfg, Store: dao.NewMemoryScanDAO(), Logger: logger.Discard()})
	assert.Error(t, err)
}
