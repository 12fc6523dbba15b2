package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/pkg/logger"
	"vigil/pkg/runner"
	"vigil/pkg/testutil"
)

func TestDockerRunner_BuildCommand(t *testing.T) {
	dr := runner.NewDockerRunner(testutil.NewMockCommandRunner(), logger.Discard())

	tests := []struct {
		name     string
		spec     runner.DockerSpec
		cidfile  string
		expected []string
	}{
		{
			name: "exec into running container",
			spec: runner.DockerSpec{
				Container: "security-scanner-nuclei",
				Args:      []string{"nuclei", "-u", "https://example.com"},
			},
			expected: []string{"exec", "security-scanner-nuclei", "nuclei", "-u", "https://example.com"},
		},
		{
			name: "throwaway container",
			spec: runner.DockerSpec{
				Image:   "alpine/nikto",
				Args:    []string{"-h", "https://example.com"},
				Volumes: []string{"/tmp/out:/output"},
				Network: "scanner-net",
			},
			cidfile:  "/tmp/c.cid",
			expected: []string{"run", "--rm", "--cidfile", "/tmp/c.cid", "-v", "/tmp/out:/output", "--network", "scanner-net", "alpine/nikto", "-h", "https://example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := dr.BuildCommand(tt.spec, tt.cidfile)
			assert.Equal(t, "docker", cmd.Name)
			assert.Equal(t, tt.expected, cmd.Args)
		})
	}
}

func TestDockerRunner_TimeoutRemovesContainer(t *testing.T) {
	mock := testutil.NewMockCommandRunner()
	mock.OnExecute = func(cmd runner.Command) {
		for i, arg := range cmd.Args {
			if arg == "--cidfile" {
				_ = os.WriteFile(cmd.Args[i+1], []byte("abc123\n"), 0o644)
			}
		}
	}
	mock.SetResponse("docker run", testutil.CommandResponse{
		Result: runner.ExecResult{Stderr: "Command timed out", ExitCode: -1, TimedOut: true},
	})

	dr := runner.NewDockerRunner(mock, logger.Discard())
	res, cmd, err := dr.Run(context.Background(), runner.DockerSpec{Image: "zaproxy/zap-stable"}, time.Second)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, "run", cmd.Args[0])

	executed := mock.GetExecutedCommands()
	require.Len(t, executed, 2)
	assert.Equal(t, []string{"rm", "-f", "abc123"}, executed[1].Command.Args)
	assert.Equal(t, time.Second, executed[0].Timeout)
}

// scriptDocker sends docker invocations to a shell script standing in for
// the docker CLI.
type scriptDocker struct {
	inner  runner.CommandRunner
	script string
}

func (s scriptDocker) Execute(ctx context.Context, cmd runner.Command, timeout time.Duration) (runner.ExecResult, error) {
	cmd.Name = s.script
	return s.inner.Execute(ctx, cmd, timeout)
}

const fakeDocker = `#!/bin/sh
dir=$(dirname "$0")
if [ "$1" = "rm" ]; then
	echo "$3" > "$dir/removed"
	exit 0
fi
if [ "$3" = "--cidfile" ]; then
	echo fakecid > "$4"
fi
exec sleep 5
`

func TestDockerRunner_JobDeadlineRemovesContainer(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-docker.sh")
	require.NoError(t, os.WriteFile(script, []byte(fakeDocker), 0o755))

	dr := runner.NewDockerRunner(scriptDocker{
		inner:  runner.NewSimpleRunner(logger.Discard()),
		script: script,
	}, logger.Discard())

	// Modules receive a context whose deadline equals the job timeout.
	timeout := 300 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, _, err := dr.Run(ctx, runner.DockerSpec{Image: "alpine"}, timeout)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)

	removed, err := os.ReadFile(filepath.Join(dir, "removed"))
	require.NoError(t, err, "container should have been removed")
	assert.Equal(t, "fakecid", strings.TrimSpace(string(removed)))
}

func TestDockerRunner_CancelledRunRemovesContainer(t *testing.T) {
	mock := testutil.NewMockCommandRunner()
	mock.OnExecute = func(cmd runner.Command) {
		for i, arg := range cmd.Args {
			if arg == "--cidfile" {
				_ = os.WriteFile(cmd.Args[i+1], []byte("def456\n"), 0o644)
			}
		}
	}
	mock.SetResponse("docker run", testutil.CommandResponse{Delay: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	dr := runner.NewDockerRunner(mock, logger.Discard())
	_, _, err := dr.Run(ctx, runner.DockerSpec{Image: "zaproxy/zap-stable"}, time.Minute)
	require.ErrorIs(t, err, context.Canceled)

	executed := mock.GetExecutedCommands()
	require.Len(t, executed, 2)
	assert.Equal(t, []string{"rm", "-f", "def456"}, executed[1].Command.Args)
}

func TestDockerRunner_ExecTimeoutLeavesContainer(t *testing.T) {
	mock := testutil.NewMockCommandRunner()
	mock.SetResponse("docker exec", testutil.CommandResponse{
		Result: runner.ExecResult{ExitCode: -1, TimedOut: true},
	})

	dr := runner.NewDockerRunner(mock, logger.Discard())
	_, _, err := dr.Run(context.Background(), runner.DockerSpec{Container: "security-scanner-zap"}, time.Second)
	require.NoError(t, err)
	assert.Len(t, mock.GetExecutedCommands(), 1)
}

func TestDockerRunner_RequiresImageOrContainer(t *testing.T) {
	dr := runner.NewDockerRunner(testutil.NewMockCommandRunner(), logger.Discard())
	_, _, err := dr.Run(context.Background(), runner.DockerSpec{}, time.Second)
	assert.Error(t, err)
}
