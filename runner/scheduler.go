package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Execution is a named unit of work the scheduler can launch
type Execution struct {
	Name string
	Run  func(ctx context.Context) types.Result
}

// Schedule runs executions under policy and returns one result per
// execution, in input order regardless of completion order.
func Schedule(ctx context.Context, policy types.Concurrency, executions []Execution) []types.Result {
	switch p := policy.(type) {
	case types.Parallel:
		return runParallel(ctx, p.Limit, executions)
	case types.Sequential:
		if p.FailFast {
			return StopAtFirstFailure(ctx, executions)
		}
		return runSequential(ctx, executions)
	default:
		return StopAtFirstFailure(ctx, executions)
	}
}

// runParallel launches every execution at once, or at most limit at a time
// when limit is positive. A failing execution never cancels its siblings.
func runParallel(ctx context.Context, limit int, executions []Execution) []types.Result {
	results := make([]types.Result, len(executions))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, exec := range executions {
		g.Go(func() error {
			results[i] = exec.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runSequential runs every execution one at a time, whatever the outcome of
// earlier ones.
func runSequential(ctx context.Context, executions []Execution) []types.Result {
	results := make([]types.Result, len(executions))
	for i, exec := range executions {
		results[i] = exec.Run(ctx)
	}
	return results
}
