// Package modules defines scanner modules and the registry that resolves a
// scan's requested module names.
package modules

import (
	"context"
	"time"

	"vigil/internal/models"
	"vigil/pkg/hub"
)

// RunFunc performs one module run. It should honour ctx; the executor
// abandons it once the job's timeout elapses either way.
type RunFunc func(ctx context.Context, job Job) (Outcome, error)

type Module struct {
	Name        string
	Category    models.Category
	Description string
	Run         RunFunc
}

// ProgressReporter allows modules to report their execution progress
type ProgressReporter interface {
	ReportProgress(ev hub.Event)
}

// OutputSink receives a module's raw output for archiving.
type OutputSink interface {
	LogModuleOutput(module, stream, output string)
}

type Job struct {
	ScanID   string
	Target   string
	Timeout  time.Duration
	Reporter ProgressReporter
	Output   OutputSink
}

// Outcome is what a module hands back. Status is normally left empty and
// filled in by the executor.
type Outcome struct {
	Status   models.Status
	Data     map[string]any
	Findings []models.Finding
	Error    string
}

type nopReporter struct{}

func (nopReporter) ReportProgress(hub.Event) {}

type nopSink struct{}

func (nopSink) LogModuleOutput(string, string, string) {}

// WithDefaults fills nil collaborators with no-op implementations.
func (j Job) WithDefaults() Job {
	if j.Reporter == nil {
		j.Reporter = nopReporter{}
	}
	if j.Output == nil {
		j.Output = nopSink{}
	}
	return j
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(ev hub.Event)

func (f ReporterFunc) ReportProgress(ev hub.Event) { f(ev) }
