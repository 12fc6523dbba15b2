package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/models"
	vigilerrors "vigil/pkg/errors"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
)

const DefaultModuleTimeout = 300 * time.Second

// ModuleObserver is told about every finished module run.
type ModuleObserver interface {
	ModuleFinished(module string, status models.Status, duration time.Duration)
}

type nopModuleObserver struct{}

func (nopModuleObserver) ModuleFinished(string, models.Status, time.Duration) {}

// Executor runs a single module under a hard deadline and always hands
// back a ScanResult.
type Executor struct {
	logger   *logger.Logger
	tracer   trace.Tracer
	observer ModuleObserver
}

func NewExecutor(log *logger.Logger, tracer trace.Tracer, observer ModuleObserver) *Executor {
	if log == nil {
		log = logger.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("vigil/engine")
	}
	if observer == nil {
		observer = nopModuleObserver{}
	}
	return &Executor{logger: log, tracer: tracer, observer: observer}
}

type runReturn struct {
	outcome modules.Outcome
	err     error
}

// Run executes m for job. The module runs in its own goroutine; Run returns
// when it finishes or when the job's timeout elapses, whichever comes first.
// A module that overruns is abandoned, it is up to the module to stop once
// its context is done.
func (e *Executor) Run(ctx context.Context, m modules.Module, job modules.Job) models.ScanResult {
	job = job.WithDefaults()
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultModuleTimeout
		job.Timeout = timeout
	}

	ctx, span := e.tracer.Start(ctx, "module.run", trace.WithAttributes(
		attribute.String("scan.id", job.ScanID),
		attribute.String("module.name", m.Name),
		attribute.String("module.category", string(m.Category)),
	))
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(logger.Fields{
		"scan_id": job.ScanID,
		"module":  m.Name,
	})
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan runReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runReturn{err: fmt.Errorf("%w: module panicked: %v", vigilerrors.ErrModuleExecution, r)}
			}
		}()
		out, err := m.Run(runCtx, job)
		done <- runReturn{outcome: out, err: err}
	}()

	result := models.ScanResult{
		ScanID:   job.ScanID,
		Module:   m.Name,
		Category: m.Category,
		Target:   job.Target,
	}

	var modErr error
	select {
	case r := <-done:
		switch {
		case r.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			modErr = vigilerrors.ErrModuleTimeout
		case r.err != nil:
			modErr = r.err
		case r.outcome.Status == models.StatusTimeout:
			modErr = vigilerrors.ErrModuleTimeout
		case r.outcome.Status == models.StatusError:
			msg := r.outcome.Error
			if msg == "" {
				msg = "module reported an error"
			}
			modErr = errors.New(msg)
		default:
			result.Status = models.StatusSuccess
			result.Data = r.outcome.Data
			result.Findings = normalize(r.outcome.Findings)
		}
	case <-runCtx.Done():
		if ctx.Err() != nil {
			modErr = ctx.Err()
		} else {
			modErr = vigilerrors.ErrModuleTimeout
		}
	}

	switch {
	case modErr == nil:
	case errors.Is(modErr, vigilerrors.ErrModuleTimeout):
		result.Status = models.StatusTimeout
		result.Error = models.StringPtr("Scan timed out")
		result.Findings = nil
		log.WithFields(logger.Fields{"timeout": timeout.String()}).Warn("Module timed out")
		span.SetStatus(codes.Error, "timeout")
	default:
		result.Status = models.StatusError
		result.Error = models.StringPtr(modErr.Error())
		result.Findings = nil
		log.WithError(&vigilerrors.ModuleError{Module: m.Name, Err: modErr}).Error("Module failed")
		span.RecordError(modErr)
		span.SetStatus(codes.Error, modErr.Error())
	}

	elapsed := time.Since(start)
	result.Timestamp = time.Now().UTC()
	result.DurationMS = elapsed.Milliseconds()
	if result.DurationMS < 0 {
		result.DurationMS = 0
	}

	span.SetAttributes(
		attribute.String("module.status", string(result.Status)),
		attribute.Int("module.findings", len(result.Findings)),
	)
	e.observer.ModuleFinished(m.Name, result.Status, elapsed)

	log.WithFields(logger.Fields{
		"status":      result.Status,
		"findings":    len(result.Findings),
		"duration_ms": result.DurationMS,
	}).Info("Module finished")

	return result
}

func normalize(in []models.Finding) []models.Finding {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Finding, len(in))
	for i, f := range in {
		f.Normalize()
		out[i] = f
	}
	return out
}
