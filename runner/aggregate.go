package runner

import (
	"context"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// StopAtFirstFailure runs executions one at a time in order. Once one
// fails, nothing else is launched and every remaining execution is reported
// as skipped, so the result list always has one entry per execution.
func StopAtFirstFailure(ctx context.Context, executions []Execution) []types.Result {
	results := make([]types.Result, 0, len(executions))
	for i, exec := range executions {
		result := exec.Run(ctx)
		results = append(results, result)
		if !result.OK() {
			for _, rest := range executions[i+1:] {
				results = append(results, types.Skipped(rest.Name))
			}
			break
		}
	}
	return results
}

// AllOrNothing folds results into their ordered successes when every result
// passed. Otherwise ok is false and the caller reports the full result list,
// successes included.
func AllOrNothing(results []types.Result) (successes []types.Named[types.TestUnitSuccess], ok bool) {
	successes = make([]types.Named[types.TestUnitSuccess], 0, len(results))
	for _, r := range results {
		if !r.OK() {
			return nil, false
		}
		successes = append(successes, types.NewNamed(r.Name, r.Success))
	}
	return successes, true
}
