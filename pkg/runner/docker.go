package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vigil/pkg/logger"
)

// DockerSpec describes one containerised tool invocation. When Container
// is set the tool runs inside that long-lived container via docker exec;
// otherwise a throwaway container is started from Image.
type DockerSpec struct {
	Image     string
	Container string
	Args      []string
	Volumes   []string
	Network   string
}

type DockerRunner struct {
	runner CommandRunner
	binary string
	logger *logger.Logger
}

func NewDockerRunner(r CommandRunner, log *logger.Logger) *DockerRunner {
	if log == nil {
		log = logger.Default()
	}
	return &DockerRunner{runner: r, binary: "docker", logger: log}
}

// BuildCommand returns the docker invocation for spec. cidfile is only
// used for docker run.
func (d *DockerRunner) BuildCommand(spec DockerSpec, cidfile string) Command {
	if spec.Container != "" {
		args := append([]string{"exec", spec.Container}, spec.Args...)
		return Command{Name: d.binary, Args: args}
	}

	args := []string{"run", "--rm"}
	if cidfile != "" {
		args = append(args, "--cidfile", cidfile)
	}
	for _, v := range spec.Volumes {
		args = append(args, "-v", v)
	}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	args = append(args, spec.Image)
	args = append(args, spec.Args...)

	return Command{Name: d.binary, Args: args}
}

// Run executes spec and returns the command that was issued alongside its
// result. A container started with docker run is force-removed when the
// timeout fires or ctx ends first.
func (d *DockerRunner) Run(ctx context.Context, spec DockerSpec, timeout time.Duration) (ExecResult, Command, error) {
	if spec.Container == "" && spec.Image == "" {
		return ExecResult{ExitCode: -1}, Command{}, fmt.Errorf("docker spec needs an image or a container")
	}

	var cidfile string
	if spec.Container == "" {
		dir, err := os.MkdirTemp("", "vigil-cid-")
		if err != nil {
			return ExecResult{ExitCode: -1}, Command{}, fmt.Errorf("create cidfile dir: %w", err)
		}
		defer os.RemoveAll(dir)
		cidfile = filepath.Join(dir, "container.cid")
	}

	cmd := d.BuildCommand(spec, cidfile)
	res, err := d.runner.Execute(ctx, cmd, timeout)

	// Killing the docker client leaves the container running.
	if cidfile != "" && (res.TimedOut || ctx.Err() != nil) {
		d.cleanupContainer(cidfile)
	}
	if err != nil {
		return res, cmd, err
	}

	return res, cmd, nil
}

func (d *DockerRunner) cleanupContainer(cidfile string) {
	raw, err := os.ReadFile(cidfile)
	if err != nil {
		return
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := d.runner.Execute(ctx, Command{Name: d.binary, Args: []string{"rm", "-f", id}}, 10*time.Second); err != nil {
		d.logger.WithFields(logger.Fields{
			"container": id,
			"error":     err,
		}).Warn("Failed to remove timed out container")
	}
}
