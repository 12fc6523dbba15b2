package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"vigil/pkg/logger"
)

var (
	safeFilename = regexp.MustCompile(`^[a-zA-Z0-9_\-./]+$`)

	defaultAllowedCommands = []string{"docker", "echo", "printf", "sleep", "sh", "true", "false"}
)

// SimpleRunner executes system commands directly, without a shell.
type SimpleRunner struct {
	logger  *logger.Logger
	allowed map[string]bool
}

type SimpleRunnerOpt func(*SimpleRunner)

// WithAllowedCommands extends the set of bare commands the runner accepts.
func WithAllowedCommands(names ...string) SimpleRunnerOpt {
	return func(r *SimpleRunner) {
		for _, n := range names {
			r.allowed[n] = true
		}
	}
}

func NewSimpleRunner(log *logger.Logger, opts ...SimpleRunnerOpt) *SimpleRunner {
	if log == nil {
		log = logger.Default()
	}
	r := &SimpleRunner{
		logger:  log,
		allowed: make(map[string]bool),
	}
	for _, n := range defaultAllowedCommands {
		r.allowed[n] = true
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs cmd with automatic interpreter resolution for script files.
// The process is killed once timeout elapses or ctx's deadline passes,
// whichever is first, and the result is marked TimedOut.
func (r *SimpleRunner) Execute(ctx context.Context, cmd Command, timeout time.Duration) (ExecResult, error) {
	if err := r.validateCommand(cmd.Name); err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("invalid command: %w", err)
	}

	for i, arg := range cmd.Args {
		if err := r.validateArgument(arg); err != nil {
			return ExecResult{ExitCode: -1}, fmt.Errorf("invalid argument at index %d (%s): %w", i, arg, err)
		}
	}

	finalCommand, finalArgs := r.resolveInterpreter(cmd.Name, cmd.Args)

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r.logger.WithFields(logger.Fields{
		"command": finalCommand,
		"args":    finalArgs,
		"timeout": timeout.String(),
	}).Debug("Executing command")

	c := exec.CommandContext(runCtx, finalCommand, finalArgs...)
	c.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()

	// The caller's deadline counts as a timeout too; only cancellation of
	// ctx is reported as an error.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.WithFields(logger.Fields{
			"command": finalCommand,
			"timeout": timeout.String(),
		}).Warn("Command timed out")
		return timedOutResult(), nil
	}

	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return res, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.WithFields(logger.Fields{
				"command":   finalCommand,
				"exit_code": res.ExitCode,
				"stderr":    truncate(res.Stderr, 512),
			}).Debug("Command exited with non-zero status")
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("execution failed: %w", err)
	}

	return res, nil
}

// validateCommand validates that a command is safe to execute
func (r *SimpleRunner) validateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("command is empty")
	}

	if r.allowed[command] {
		return nil
	}

	// For script files, validate path
	if strings.Contains(command, ".") {
		if !safeFilename.MatchString(command) {
			return fmt.Errorf("unsafe characters in command: %s", command)
		}

		fi, err := os.Lstat(command)
		if err != nil {
			return fmt.Errorf("command file does not exist: %w", err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("command is a symlink: %s", command)
		}

		return nil
	}

	return fmt.Errorf("command not in whitelist: %s", command)
}

// validateArgument rejects shell metacharacters. Commands never go through
// a shell, but arguments end up in container entrypoints that might.
func (r *SimpleRunner) validateArgument(arg string) error {
	if arg == "" {
		return nil
	}

	dangerous := []string{";", "|", "`", "$(", "\n", "\r", "<", ">"}
	for _, char := range dangerous {
		if strings.Contains(arg, char) {
			return fmt.Errorf("argument contains dangerous character: %q", char)
		}
	}

	if strings.Contains(arg, "..") && !strings.Contains(arg, "://") {
		return fmt.Errorf("path traversal detected in argument")
	}

	return nil
}

// resolveInterpreter determines the appropriate interpreter for script files
func (r *SimpleRunner) resolveInterpreter(command string, args []string) (string, []string) {
	if !strings.Contains(command, ".") {
		return command, args
	}

	switch filepath.Ext(command) {
	case ".py":
		return "python3", append([]string{command}, args...)
	case ".sh":
		if runtime.GOOS == "windows" {
			return "bash", append([]string{command}, args...)
		}
		return "sh", append([]string{command}, args...)
	case ".rb":
		return "ruby", append([]string{command}, args...)
	}

	return command, args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
