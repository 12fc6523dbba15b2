package runner

import (
	"context"
	"time"
)

// ExecResult is what a finished (or killed) process left behind.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// CommandRunner executes a command and waits for it up to timeout. It
// returns an error only when the process could not be run at all; a
// non-zero exit or a timeout is reported through ExecResult.
type CommandRunner interface {
	Execute(ctx context.Context, cmd Command, timeout time.Duration) (ExecResult, error)
}

const timedOutMessage = "Command timed out"

func timedOutResult() ExecResult {
	return ExecResult{
		Stderr:   timedOutMessage,
		ExitCode: -1,
		TimedOut: true,
	}
}
