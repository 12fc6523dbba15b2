package modules

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"vigil/internal/models"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
	"vigil/pkg/parsers"
	"vigil/pkg/runner"
)

// DockerModuleSettings are the catalogue-wide values a docker module needs.
type DockerModuleSettings struct {
	Network            string
	OutputDir          string
	ContainerOutputDir string
}

// NewDockerModule builds a module that runs cfg's tool in a container and
// parses what it leaves behind.
func NewDockerModule(cfg ModuleConfig, settings DockerModuleSettings, dr *runner.DockerRunner, log *logger.Logger) (Module, error) {
	parse, err := parsers.Get(cfg.Parser)
	if err != nil {
		return Module{}, fmt.Errorf("module %s: %w", cfg.Name, err)
	}
	if log == nil {
		log = logger.Default()
	}

	dm := &dockerModule{cfg: cfg, settings: settings, docker: dr, parse: parse, logger: log}

	return Module{
		Name:        cfg.Name,
		Category:    models.Category(cfg.Category),
		Description: cfg.Description,
		Run:         dm.run,
	}, nil
}

type dockerModule struct {
	cfg      ModuleConfig
	settings DockerModuleSettings
	docker   *runner.DockerRunner
	parse    parsers.Func
	logger   *logger.Logger
}

func (m *dockerModule) run(ctx context.Context, job Job) (Outcome, error) {
	job = job.WithDefaults()

	values := map[string]string{
		"target":     job.Target,
		"host":       hostOf(job.Target),
		"scan_id":    job.ScanID,
		"module":     m.cfg.Name,
		"output_dir": m.settings.OutputDir,
	}

	var outputName string
	if m.cfg.OutputFile != "" {
		outputName = runner.RenderArgs([]string{m.cfg.OutputFile}, values)[0]
		values["output"] = path.Join(m.settings.ContainerOutputDir, outputName)
	}

	spec := runner.DockerSpec{
		Image:     m.cfg.Image,
		Container: m.cfg.Container,
		Args:      runner.RenderArgs(m.cfg.Args, values),
		Volumes:   runner.RenderArgs(m.cfg.Volumes, values),
		Network:   m.settings.Network,
	}

	image := m.cfg.Image
	if image == "" {
		image = m.cfg.Container
	}
	job.Reporter.ReportProgress(hub.Docker(m.cfg.Name, "Executing: "+image, m.docker.BuildCommand(spec, "").String()))

	res, cmd, err := m.docker.Run(ctx, spec, job.Timeout)
	if err != nil {
		return Outcome{}, fmt.Errorf("docker command failed: %w", err)
	}

	job.Output.LogModuleOutput(m.cfg.Name, "stdout", res.Stdout)
	job.Output.LogModuleOutput(m.cfg.Name, "stderr", res.Stderr)

	// Timeout and failure events are published from the module result.
	if res.TimedOut {
		return Outcome{Status: models.StatusTimeout, Error: "Scan timed out"}, nil
	}

	raw := []byte(res.Stdout)
	if outputName != "" {
		hostPath := filepath.Join(m.settings.OutputDir, outputName)
		data, readErr := os.ReadFile(hostPath)
		switch {
		case readErr == nil:
			raw = data
			os.Remove(hostPath)
		case res.ExitCode != 0:
			return Outcome{}, fmt.Errorf("exit code %d: %s", res.ExitCode, firstLine(res.Stderr))
		default:
			// tools that find nothing often write nothing
			m.logger.WithModule(job.ScanID, m.cfg.Name).Debug("No output file produced")
			raw = nil
		}
	}

	var findings []models.Finding
	if len(bytes.TrimSpace(raw)) > 0 {
		findings, err = m.parse(raw)
		if err != nil {
			return Outcome{}, fmt.Errorf("parse %s output: %w", m.cfg.Name, err)
		}
	}

	return Outcome{
		Data: map[string]any{
			"exit_code":      res.ExitCode,
			"findings_count": len(findings),
			"command":        cmd.String(),
		},
		Findings: findings,
	}, nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return u.Hostname()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "no output"
	}
	return s
}
