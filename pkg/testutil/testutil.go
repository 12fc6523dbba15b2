// Package testutil provides testing utilities for the vigil service
package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vigil/internal/models"
	"vigil/pkg/hub"
	"vigil/pkg/modules"
	"vigil/pkg/runner"
)

// MockCommandRunner implements runner.CommandRunner for testing
type MockCommandRunner struct {
	mu        sync.RWMutex
	commands  []ExecutedCommand
	responses map[string]CommandResponse

	// OnExecute, when set, runs before the canned response is returned.
	OnExecute func(cmd runner.Command)
}

type ExecutedCommand struct {
	Command runner.Command
	Timeout time.Duration
}

type CommandResponse struct {
	Result runner.ExecResult
	Error  error
	Delay  time.Duration
}

func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{
		responses: make(map[string]CommandResponse),
	}
}

func (m *MockCommandRunner) Execute(ctx context.Context, cmd runner.Command, timeout time.Duration) (runner.ExecResult, error) {
	m.mu.Lock()
	m.commands = append(m.commands, ExecutedCommand{Command: cmd, Timeout: timeout})
	hook := m.OnExecute
	m.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}

	m.mu.RLock()
	response, exists := m.matchLocked(cmd)
	m.mu.RUnlock()

	if !exists {
		return runner.ExecResult{}, nil
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-ctx.Done():
			return runner.ExecResult{ExitCode: -1}, ctx.Err()
		}
	}
	return response.Result, response.Error
}

// matchLocked finds the response registered for the longest prefix of the
// rendered command.
func (m *MockCommandRunner) matchLocked(cmd runner.Command) (CommandResponse, bool) {
	rendered := cmd.Name + " " + strings.Join(cmd.Args, " ")
	best, found := "", false
	for key := range m.responses {
		if strings.HasPrefix(rendered, key) && len(key) >= len(best) {
			best, found = key, true
		}
	}
	if !found {
		return CommandResponse{}, false
	}
	return m.responses[best], true
}

// SetResponse registers a response for every command starting with prefix.
func (m *MockCommandRunner) SetResponse(prefix string, response CommandResponse) {
	m.mu.Lock()
	m.responses[prefix] = response
	m.mu.Unlock()
}

func (m *MockCommandRunner) GetExecutedCommands() []ExecutedCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commands := make([]ExecutedCommand, len(m.commands))
	copy(commands, m.commands)
	return commands
}

// EventRecorder collects progress events reported by modules.
type EventRecorder struct {
	mu     sync.Mutex
	events []hub.Event
}

func (r *EventRecorder) ReportProgress(ev hub.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *EventRecorder) Events() []hub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hub.Event(nil), r.events...)
}

// StaticModule returns a module that succeeds with the given findings.
func StaticModule(name string, category models.Category, findings ...models.Finding) modules.Module {
	return modules.Module{
		Name:     name,
		Category: category,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			return modules.Outcome{
				Data:     map[string]any{"findings_count": len(findings)},
				Findings: findings,
			}, nil
		},
	}
}

// FailingModule returns a module whose run fails with msg.
func FailingModule(name string, msg string) modules.Module {
	return modules.Module{
		Name:     name,
		Category: models.CategoryQuick,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			return modules.Outcome{}, errors.New(msg)
		},
	}
}

// PanickingModule returns a module whose run panics.
func PanickingModule(name string) modules.Module {
	return modules.Module{
		Name:     name,
		Category: models.CategoryDeep,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			panic("scanner exploded")
		},
	}
}

// BlockingModule returns a module that ignores its context and only returns
// once release is closed.
func BlockingModule(name string, release <-chan struct{}) modules.Module {
	return modules.Module{
		Name:     name,
		Category: models.CategoryDeep,
		Run: func(ctx context.Context, job modules.Job) (modules.Outcome, error) {
			<-release
			return modules.Outcome{}, nil
		},
	}
}

// TempDir creates a temporary directory for testing and returns a cleanup function
func TempDir(t *testing.T, prefix string) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Errorf("Failed to clean up temp dir %s: %v", dir, err)
		}
	}

	return dir, cleanup
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, filename)
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}

	return filePath
}

// WithTimeout creates a context with timeout for tests
func WithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}
