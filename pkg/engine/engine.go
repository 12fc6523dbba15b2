package engine

import (
	"context"

	"vigil/internal/models"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
)

type engineOpts struct {
	executor *Executor
	strategy ExecutionStrategy
	queue    *EngineQueue
	logger   *logger.Logger
}

type OptFunc func(*engineOpts)

// Engine ties the executor to a scheduling strategy and a scan queue.
type Engine struct {
	engineOpts
}

func NewEngine(opts ...OptFunc) *Engine {
	o := engineOpts{
		strategy: &SequentialStrategy{},
		logger:   logger.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.executor == nil {
		o.executor = NewExecutor(o.logger, nil, nil)
	}
	if o.queue == nil {
		o.queue = NewEngineQueue(1, o.logger)
	}
	return &Engine{engineOpts: o}
}

func WithExecutor(x *Executor) OptFunc {
	return func(o *engineOpts) {
		o.executor = x
	}
}

func WithStrategy(s ExecutionStrategy) OptFunc {
	return func(o *engineOpts) {
		o.strategy = s
	}
}

func WithQueue(q *EngineQueue) OptFunc {
	return func(o *engineOpts) {
		o.queue = q
	}
}

func WithLogger(l *logger.Logger) OptFunc {
	return func(o *engineOpts) {
		o.logger = l
	}
}

// StepHooks are called around each module run. Either may be nil. In
// parallel mode they are called from several goroutines at once.
type StepHooks struct {
	Before func(m modules.Module)
	After  func(m modules.Module, r models.ScanResult)
}

// RunModules runs mods for job with the configured strategy.
func (e *Engine) RunModules(ctx context.Context, mods []modules.Module, job modules.Job, hooks StepHooks) []models.ScanResult {
	e.logger.WithFields(logger.Fields{
		"scan_id":  job.ScanID,
		"modules":  len(mods),
		"strategy": e.strategy.Name(),
	}).Info("Running modules")

	return e.strategy.Run(ctx, mods, func(ctx context.Context, m modules.Module) models.ScanResult {
		if hooks.Before != nil {
			hooks.Before(m)
		}
		r := e.executor.Run(ctx, m, job)
		if hooks.After != nil {
			hooks.After(m, r)
		}
		return r
	})
}

// Submit runs fn once the queue has a free slot.
func (e *Engine) Submit(ctx context.Context, fn func() error) error {
	return e.queue.ExecuteWithQueue(ctx, fn)
}

func (e *Engine) Queue() *EngineQueue {
	return e.queue
}

func (e *Engine) Strategy() ExecutionStrategy {
	return e.strategy
}
