package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/dao"
	"vigil/internal/models"
	vigilerrors "vigil/pkg/errors"
	"vigil/pkg/engine"
	"vigil/pkg/hooks"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
)

const (
	DefaultTimeoutSeconds = 300
	MaxTimeoutSeconds     = 3600
)

type ScanRequest struct {
	Target  string   `json:"target"`
	Modules []string `json:"modules,omitempty"`
	Timeout int      `json:"timeout,omitempty"`
}

// ScanObserver is told about scan level activity.
type ScanObserver interface {
	ScanStarted()
	ScanFinished(status models.Status)
	FindingsRecorded(module string, findings []models.Finding)
}

type nopScanObserver struct{}

func (nopScanObserver) ScanStarted()                            {}
func (nopScanObserver) ScanFinished(models.Status)              {}
func (nopScanObserver) FindingsRecorded(string, []models.Finding) {}

type Options struct {
	Store    dao.ScanDAO
	Registry *modules.Registry
	Engine   *engine.Engine
	Hub      *hub.Hub
	Observer ScanObserver
	Hooks    []hooks.Hook
	Logger   *logger.Logger

	// WorkDir, when set, receives a per-scan directory with scan.log and
	// error.log.
	WorkDir string
	// OutputDir, when set, is watched for module output while a scan runs.
	OutputDir string

	DefaultTimeout int
	HookTimeout    time.Duration
	Clock          func() time.Time
	// NewID generates scan ids. Defaults to NewScanID.
	NewID func(now time.Time) string
}

// Orchestrator accepts scans and runs each one as a background task.
type Orchestrator struct {
	opts    Options
	logger  *logger.Logger
	tracer  trace.Tracer
	status  *ScanStatusManager
	monitor *OutputMonitor

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopScanObserver{}
	}
	if opts.Engine == nil {
		opts.Engine = engine.NewEngine(engine.WithLogger(opts.Logger))
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeoutSeconds
	}
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewScanID
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:   opts,
		logger: opts.Logger,
		tracer: otel.Tracer("vigil/services"),
		status: newScanStatusManager(opts.Store, opts.Logger, opts.Clock),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*Task),
	}
	if opts.OutputDir != "" {
		o.monitor = NewOutputMonitor(opts.OutputDir, opts.Hub, opts.Logger)
	}
	return o
}

// Task is the handle of one scan's background run.
type Task struct {
	ScanID string

	done   chan struct{}
	status models.Status
}

func newTask(scanID string) *Task {
	return &Task{ScanID: scanID, done: make(chan struct{})}
}

// Done is closed once the scan is finalized.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the scan is finalized and returns its terminal status.
func (t *Task) Wait(ctx context.Context) (models.Status, error) {
	select {
	case <-t.done:
		return t.status, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// StartScan validates req, records the scan as running and starts it in the
// background. It returns as soon as the scan row exists.
func (o *Orchestrator) StartScan(ctx context.Context, req ScanRequest) (*models.Scan, error) {
	scan, _, err := o.StartScanTask(ctx, req)
	return scan, err
}

// StartScanTask is StartScan that also hands back the task handle.
func (o *Orchestrator) StartScanTask(ctx context.Context, req ScanRequest) (*models.Scan, *Task, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, nil, vigilerrors.NewValidationError("target", "is required")
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = o.opts.DefaultTimeout
	}
	if timeout < 1 || timeout > MaxTimeoutSeconds {
		return nil, nil, vigilerrors.NewValidationError("timeout", fmt.Sprintf("must be between 1 and %d seconds", MaxTimeoutSeconds))
	}

	now := o.opts.Clock().UTC()
	scan := &models.Scan{
		ScanID:    o.opts.NewID(now),
		Target:    target,
		Status:    models.StatusRunning,
		Modules:   req.Modules,
		Timeout:   timeout,
		StartedAt: now,
	}

	// Registering under the same lock Shutdown takes its snapshot with
	// means a scan is either refused or waited for.
	task := newTask(scan.ScanID)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, nil, fmt.Errorf("orchestrator is shutting down")
	}
	o.tasks[scan.ScanID] = task
	o.mu.Unlock()

	if err := o.opts.Store.CreateScan(ctx, scan); err != nil {
		o.forget(task)
		close(task.done)
		return nil, nil, err
	}
	o.opts.Observer.ScanStarted()

	o.logger.WithScan(scan.ScanID, scan.Target).WithFields(logger.Fields{
		"modules": req.Modules,
		"timeout": timeout,
	}).Info("Scan accepted")

	go o.execute(task, *scan)

	scan.Results = []models.ScanResult{}
	return scan, task, nil
}

// Task returns the handle of a scan that is still running.
func (o *Orchestrator) Task(scanID string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[scanID]
	return t, ok
}

// Running returns how many scans have not been finalized yet.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

func (o *Orchestrator) forget(t *Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tasks, t.ScanID)
}

// Shutdown stops accepting scans and waits for running ones to finish. When
// ctx ends first, running scans are cancelled and ctx's error returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	pending := make([]*Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		pending = append(pending, t)
	}
	o.mu.Unlock()

	o.logger.WithFields(logger.Fields{"running": len(pending)}).Info("Waiting for running scans")

	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			o.cancel()
			return ctx.Err()
		}
	}
	o.cancel()
	return nil
}

// hubReporter forwards module progress to the scan's log stream.
type hubReporter struct {
	hub    *hub.Hub
	scanID string
}

func (r hubReporter) ReportProgress(ev hub.Event) {
	r.hub.Publish(r.scanID, ev)
}

func (o *Orchestrator) publish(scanID string, ev hub.Event) {
	o.opts.Hub.Publish(scanID, ev)
}

func (o *Orchestrator) fault(scanID, op string, err error) error {
	f := &vigilerrors.OrchestrationFault{ScanID: scanID, Op: op, Err: err}
	o.logger.WithError(f).WithFields(logger.Fields{
		"scan_id": scanID,
		"op":      op,
	}).Error("Orchestration fault")
	return f
}
