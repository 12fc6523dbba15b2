package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vigil/internal/models"
	"vigil/pkg/modules"
)

// Step runs one module and returns its result. Steps never fail; every
// outcome is folded into the ScanResult.
type Step func(ctx context.Context, m modules.Module) models.ScanResult

// ExecutionStrategy decides how a scan's modules are scheduled. Results
// always come back in the order of mods.
type ExecutionStrategy interface {
	Name() string
	Run(ctx context.Context, mods []modules.Module, step Step) []models.ScanResult
}

type SequentialStrategy struct{}

func (s *SequentialStrategy) Name() string { return modules.ExecutionSequential }

func (s *SequentialStrategy) Run(ctx context.Context, mods []modules.Module, step Step) []models.ScanResult {
	results := make([]models.ScanResult, 0, len(mods))
	for _, m := range mods {
		results = append(results, step(ctx, m))
	}
	return results
}

// ParallelStrategy runs every module at once, or at most Limit at a time
// when Limit is positive.
type ParallelStrategy struct {
	Limit int
}

func (p *ParallelStrategy) Name() string { return modules.ExecutionParallel }

func (p *ParallelStrategy) Run(ctx context.Context, mods []modules.Module, step Step) []models.ScanResult {
	results := make([]models.ScanResult, len(mods))

	// Steps never return errors, so the group context is never cancelled
	// by a failing sibling.
	g, gctx := errgroup.WithContext(ctx)
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}

	for i, m := range mods {
		g.Go(func() error {
			results[i] = step(gctx, m)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// StrategyFor maps a configured execution mode to its strategy.
func StrategyFor(mode string, parallelLimit int) (ExecutionStrategy, error) {
	switch mode {
	case "", modules.ExecutionSequential:
		return &SequentialStrategy{}, nil
	case modules.ExecutionParallel:
		return &ParallelStrategy{Limit: parallelLimit}, nil
	default:
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}
}
