package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/models"
	"vigil/pkg/engine"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
)

// runSummary is what one scan run leaves behind for finalization.
type runSummary struct {
	status   models.Status
	reason   string
	results  int
	findings int
}

// execute drives one scan from queueing to its terminal state. It always
// completes the scan's log stream, whatever happened before.
func (o *Orchestrator) execute(task *Task, scan models.Scan) {
	defer close(task.done)
	defer o.forget(task)

	ctx, span := o.tracer.Start(o.ctx, "scan.execute", trace.WithAttributes(
		attribute.String("scan.id", scan.ScanID),
		attribute.String("scan.target", scan.Target),
	))
	defer span.End()

	sum := runSummary{status: models.StatusError, reason: "scan never started"}
	err := o.opts.Engine.Submit(ctx, func() error {
		sum = o.runScan(ctx, scan)
		return nil
	})
	if err != nil {
		sum.reason = o.fault(scan.ScanID, "queue", err).Error()
	}

	if sum.status != models.StatusSuccess {
		span.SetStatus(codes.Error, sum.reason)
	}
	span.SetAttributes(
		attribute.String("scan.status", string(sum.status)),
		attribute.Int("scan.results", sum.results),
		attribute.Int("scan.findings", sum.findings),
	)

	task.status = o.finalize(ctx, scan, sum)
}

// runScan resolves and runs the scan's modules and persists every result.
// A result that cannot be saved does not stop the others from being saved.
func (o *Orchestrator) runScan(ctx context.Context, scan models.Scan) (sum runSummary) {
	log := o.logger.WithContext(ctx).WithFields(logger.Fields{
		"scan_id": scan.ScanID,
		"target":  scan.Target,
	})
	sum.status = models.StatusSuccess

	var scanLogger *logger.ScanLogger
	if o.opts.WorkDir != "" {
		sl, err := logger.NewScanLogger(scan.ScanID, filepath.Join(o.opts.WorkDir, scan.ScanID), o.logger.GetLevel())
		if err != nil {
			log.WithError(err).Warn("Failed to create scan logger, continuing without it")
		} else {
			scanLogger = sl
			defer scanLogger.Close()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err := o.fault(scan.ScanID, "run", fmt.Errorf("panic: %v", r))
			sum.status = models.StatusError
			sum.reason = err.Error()
			o.publish(scan.ScanID, hub.Error("", "Scan failed unexpectedly"))
			if scanLogger != nil {
				scanLogger.LogError("orchestrator", err, nil)
			}
		}
		if scanLogger != nil {
			scanLogger.LogScanOutcome(string(sum.status), sum.results, sum.findings)
		}
	}()

	mods := o.opts.Registry.Resolve(scan.Modules)
	o.publish(scan.ScanID, hub.Info("", fmt.Sprintf("Starting scan of %s with %d module(s)", scan.Target, len(mods))))
	if len(mods) == 0 {
		o.publish(scan.ScanID, hub.Warning("", "No known modules selected"))
	}

	job := modules.Job{
		ScanID:   scan.ScanID,
		Target:   scan.Target,
		Timeout:  secondsToDuration(scan.Timeout),
		Reporter: hubReporter{hub: o.opts.Hub, scanID: scan.ScanID},
	}
	if scanLogger != nil {
		job.Output = scanLogger
	}

	if o.monitor != nil && len(mods) > 0 {
		names := make([]string, len(mods))
		for i, m := range mods {
			names[i] = m.Name
		}
		watchCtx, stop := context.WithCancel(ctx)
		stopped := o.monitor.Watch(watchCtx, scan.ScanID, scan.Target, names)
		defer func() {
			stop()
			<-stopped
		}()
	}

	results := o.opts.Engine.RunModules(ctx, mods, job, engine.StepHooks{
		Before: func(m modules.Module) {
			o.publish(scan.ScanID, hub.Docker(m.Name, fmt.Sprintf("Running module %s", m.Name), ""))
		},
		After: func(m modules.Module, r models.ScanResult) {
			o.publish(scan.ScanID, moduleEvent(m.Name, r, scan.Timeout))
		},
	})

	for i := range results {
		r := &results[i]
		if err := o.opts.Store.SaveResult(ctx, r); err != nil {
			f := o.fault(scan.ScanID, "save_result", fmt.Errorf("%s: %w", r.Module, err))
			sum.status = models.StatusError
			sum.reason = f.Error()
			o.publish(scan.ScanID, hub.Error(r.Module, "Failed to store module result"))
			if scanLogger != nil {
				scanLogger.LogError("store", f, logger.Fields{"module": r.Module})
			}
			continue
		}
		sum.results++
		sum.findings += len(r.Findings)
		o.opts.Observer.FindingsRecorded(r.Module, r.Findings)
	}

	log.WithFields(logger.Fields{
		"results":  sum.results,
		"findings": sum.findings,
	}).Info("Modules finished")

	return sum
}

// finalize moves the scan to its terminal status, completes the log stream
// and then runs the completion hooks.
func (o *Orchestrator) finalize(ctx context.Context, scan models.Scan, sum runSummary) models.Status {
	var err error
	if sum.status == models.StatusSuccess {
		err = o.status.MarkCompleted(ctx, scan.ScanID)
	} else {
		err = o.status.MarkFailedWithReason(ctx, scan.ScanID, sum.reason)
	}
	if err != nil {
		o.fault(scan.ScanID, "mark_terminal", err)
	}

	o.opts.Observer.ScanFinished(sum.status)
	o.publish(scan.ScanID, hub.Info("", fmt.Sprintf("Scan finished with status %s: %d result(s), %d finding(s)", sum.status, sum.results, sum.findings)))
	o.opts.Hub.MarkComplete(scan.ScanID)

	o.runHooks(ctx, scan.ScanID)
	return sum.status
}

func (o *Orchestrator) runHooks(ctx context.Context, scanID string) {
	if len(o.opts.Hooks) == 0 {
		return
	}

	final, err := o.opts.Store.GetScan(ctx, scanID)
	if err != nil {
		o.fault(scanID, "load_for_hooks", err)
		return
	}

	for _, h := range o.opts.Hooks {
		hctx, cancel := context.WithTimeout(ctx, o.opts.HookTimeout)
		err := h.OnScanComplete(hctx, final)
		cancel()
		if err != nil {
			o.logger.WithError(err).WithFields(logger.Fields{
				"scan_id": scanID,
				"hook":    h.Name(),
			}).Warn("Completion hook failed")
		}
	}
}

// moduleEvent is the log event announcing a module's result.
func moduleEvent(module string, r models.ScanResult, timeoutSeconds int) hub.Event {
	switch r.Status {
	case models.StatusSuccess:
		return hub.Success(module, fmt.Sprintf("Module %s completed with %d finding(s)", module, len(r.Findings)), len(r.Findings), string(r.Status))
	case models.StatusTimeout:
		return hub.Warning(module, fmt.Sprintf("Module %s timed out after %ds", module, timeoutSeconds))
	default:
		msg := "unknown error"
		if r.Error != nil {
			msg = *r.Error
		}
		return hub.Error(module, fmt.Sprintf("Module %s failed: %s", module, msg))
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
