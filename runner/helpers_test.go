package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func equal(v any) types.Action {
	return func(context.Context) (types.ActualVsExpected, error) {
		return types.ActualVsExpected{Actual: v, Expected: v}, nil
	}
}

func differ() types.Action {
	return func(context.Context) (types.ActualVsExpected, error) {
		return types.ActualVsExpected{Actual: 1, Expected: 2}, nil
	}
}

func passing() *types.Test {
	return &types.Test{Act: equal("ok")}
}

func failing() *types.Test {
	return &types.Test{Act: differ()}
}

// counted wraps an action and counts its invocations
func counted(calls *atomic.Int32, act types.Action) types.Action {
	return func(ctx context.Context) (types.ActualVsExpected, error) {
		calls.Add(1)
		return act(ctx)
	}
}

// failTimes fails the first n invocations and passes afterwards
func failTimes(n int32, calls *atomic.Int32) types.Action {
	return func(context.Context) (types.ActualVsExpected, error) {
		if calls.Add(1) <= n {
			return types.ActualVsExpected{}, errors.New("not yet")
		}
		return types.ActualVsExpected{Actual: "done", Expected: "done"}, nil
	}
}

// sleepy passes after d, ignoring its context
func sleepy(d time.Duration) types.Action {
	return func(context.Context) (types.ActualVsExpected, error) {
		time.Sleep(d)
		return types.ActualVsExpected{Actual: true, Expected: true}, nil
	}
}

func unit(name string, u types.TestUnit) Unit {
	return types.NewNamed(name, u)
}

func group(c types.Concurrency, units ...Unit) *types.Group {
	return &types.Group{Concurrency: c, Tests: units}
}

func statuses(results []types.Result) []types.TestStatus {
	out := make([]types.TestStatus, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}

func names(results []types.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Name
	}
	return out
}
