package runner

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/shard"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

func newTestRunner(c types.Concurrency) TestRunner {
	return NewTestRunner(Config{Log: discardLogger(), Concurrency: c})
}

func TestRunAllPass(t *testing.T) {
	r := newTestRunner(nil)
	result := r.Run(context.Background(), []Unit{
		unit("t1", passing()),
		unit("t2", passing()),
	})

	require.True(t, result.OK(), "unexpected error: %v", result.Err)
	_, err := uuid.Parse(result.RunID)
	require.NoError(t, err)
	require.Len(t, result.Successes, 2)
	assert.Equal(t, "t1", result.Successes[0].Name)
	assert.Equal(t, "t2", result.Successes[1].Name)
	assert.Equal(t, types.ResultStats{Total: 2, Passed: 2}, result.Stats())
}

func TestRunParallelFailureKeepsEveryResult(t *testing.T) {
	r := newTestRunner(types.Parallel{})
	result := r.Run(context.Background(), []Unit{
		unit("t1", passing()),
		unit("t2", failing()),
	})

	require.False(t, result.OK())
	var runErr *types.TestRunError
	require.ErrorAs(t, result.Err, &runErr)
	require.Len(t, runErr.Results, 2)
	assert.Equal(t, "t1", runErr.Results[0].Name)
	assert.True(t, runErr.Results[0].OK())
	assert.Equal(t, "t2", runErr.Results[1].Name)
	assert.Equal(t, types.TestStatusFail, runErr.Results[1].Status)
	assert.Nil(t, result.Successes)
	assert.Equal(t, types.ResultStats{Total: 2, Passed: 1, Failed: 1}, result.Stats())
}

func TestRunDuplicateNamesBeforeExecution(t *testing.T) {
	var calls atomic.Int32
	r := newTestRunner(nil)
	result := r.Run(context.Background(), []Unit{
		unit("dup", &types.Test{Act: counted(&calls, equal(1))}),
		unit("dup", &types.Test{Act: counted(&calls, equal(1))}),
	})

	assert.Equal(t, &types.DuplicateTestName{Name: "dup"}, result.Err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, result.Results())
}

func TestRunDuplicateScopedNames(t *testing.T) {
	r := newTestRunner(nil)

	result := r.Run(context.Background(), []Unit{
		unit("g", group(nil, unit("a", passing()))),
		unit("g/a", passing()),
	})
	assert.Equal(t, &types.DuplicateTestName{Name: "g/a"}, result.Err)

	// the same leaf name in different groups is fine
	result = r.Run(context.Background(), []Unit{
		unit("g1", group(nil, unit("a", passing()))),
		unit("g2", group(nil, unit("a", passing()))),
	})
	assert.True(t, result.OK())
}

func TestRunGroupSuccess(t *testing.T) {
	r := newTestRunner(nil)
	result := r.Run(context.Background(), []Unit{
		unit("g", group(types.Parallel{},
			unit("a", passing()),
			unit("inner", group(types.Sequential{},
				unit("b", passing()),
			)),
		)),
	})

	require.True(t, result.OK())
	require.Len(t, result.Successes, 1)
	g, ok := result.Successes[0].Value.(*types.GroupSuccess)
	require.True(t, ok)
	require.Len(t, g.Results, 2)
	assert.Equal(t, "g/a", g.Results[0].Name)
	assert.Equal(t, "g/inner", g.Results[1].Name)

	inner, ok := g.Results[1].Value.(*types.GroupSuccess)
	require.True(t, ok)
	assert.Equal(t, "g/inner/b", inner.Results[0].Name)
	assert.Equal(t, types.ResultStats{Total: 2, Passed: 2}, result.Stats())
}

func TestRunGroupErrorKeepsSuccesses(t *testing.T) {
	r := newTestRunner(nil)
	result := r.Run(context.Background(), []Unit{
		unit("g", group(types.Sequential{FailFast: false},
			unit("a", passing()),
			unit("b", failing()),
			unit("c", passing()),
		)),
	})

	var runErr *types.TestRunError
	require.ErrorAs(t, result.Err, &runErr)
	var groupErr *types.GroupError
	require.ErrorAs(t, runErr.Results[0].Err, &groupErr)
	assert.Equal(t, []string{"g/a", "g/b", "g/c"}, names(groupErr.Results))
	assert.Equal(t, []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusPass}, statuses(groupErr.Results))
}

func TestRunNestedPoliciesAreIndependent(t *testing.T) {
	var innerCalls, outerCalls atomic.Int32
	r := newTestRunner(types.Parallel{})
	result := r.Run(context.Background(), []Unit{
		// the default group policy stops at the first failure
		unit("outer", group(nil,
			unit("inner", group(types.Parallel{},
				unit("x", failing()),
				unit("y", &types.Test{Act: counted(&innerCalls, equal(1))}),
			)),
			unit("after", &types.Test{Act: counted(&outerCalls, equal(1))}),
		)),
		unit("sibling", passing()),
	})

	var runErr *types.TestRunError
	require.ErrorAs(t, result.Err, &runErr)
	assert.Equal(t, []types.TestStatus{types.TestStatusFail, types.TestStatusPass}, statuses(runErr.Results))

	var outer *types.GroupError
	require.ErrorAs(t, runErr.Results[0].Err, &outer)
	assert.Equal(t, []types.TestStatus{types.TestStatusFail, types.TestStatusSkip}, statuses(outer.Results))
	assert.Equal(t, int32(1), innerCalls.Load(), "parallel inner group runs every child")
	assert.Equal(t, int32(0), outerCalls.Load(), "fail-fast outer group skips the rest")

	assert.Equal(t, types.ResultStats{Total: 4, Passed: 2, Failed: 1, Skipped: 1}, result.Stats())
}

func TestRunEmptySuite(t *testing.T) {
	result := newTestRunner(nil).Run(context.Background(), nil)
	assert.True(t, result.OK())
	assert.Empty(t, result.Successes)
}

func TestRunUnsupportedUnit(t *testing.T) {
	type bogus struct{ types.TestUnit }
	result := newTestRunner(nil).Run(context.Background(), []Unit{unit("bogus", bogus{})})

	var runErr *types.TestRunError
	require.ErrorAs(t, result.Err, &runErr)
	var failure *types.TestFailure
	require.ErrorAs(t, runErr.Results[0].Err, &failure)
	assert.Equal(t, types.ErrorKindUnhandledException, failure.Err.Kind())
}

func TestRunShard(t *testing.T) {
	units := []Unit{
		unit("t1", passing()),
		unit("t2", passing()),
		unit("t3", passing()),
		unit("t4", failing()),
	}
	r := newTestRunner(nil)

	result := r.RunShard(context.Background(), units, shard.Config[Unit]{
		Count: shard.Static("2"),
		Index: shard.Static("1"),
	})
	require.True(t, result.OK())
	assert.Equal(t, "t1", result.Successes[0].Name)
	assert.Equal(t, "t2", result.Successes[1].Name)

	result = r.RunShard(context.Background(), units, shard.Config[Unit]{
		Count:    shard.Static("2"),
		Index:    shard.Static("2"),
		Strategy: shard.RoundRobin[Unit],
	})
	var runErr *types.TestRunError
	require.ErrorAs(t, result.Err, &runErr)
	assert.Equal(t, []string{"t2", "t4"}, names(runErr.Results))
}

func TestRunShardErrors(t *testing.T) {
	var calls atomic.Int32
	units := []Unit{
		unit("t1", &types.Test{Act: counted(&calls, equal(1))}),
		unit("t2", &types.Test{Act: counted(&calls, equal(1))}),
	}
	r := newTestRunner(nil)

	result := r.RunShard(context.Background(), units, shard.Config[Unit]{
		Count: shard.Static("2"),
		Index: shard.Static("3"),
	})
	assert.Equal(t, &types.ShardingFailed{Err: &types.ShardIndexOutOfBound{Index: 3, ShardCount: 2}}, result.Err)

	result = r.RunShard(context.Background(), units, shard.Config[Unit]{
		Count: shard.Unset(),
		Index: shard.Static("1"),
	})
	var shardErr *types.ShardingFailed
	require.ErrorAs(t, result.Err, &shardErr)
	assert.IsType(t, &types.ShardCountUnspecified{}, shardErr.Err)

	assert.Equal(t, int32(0), calls.Load())
}

func TestRunShardChecksDuplicatesAcrossAllShards(t *testing.T) {
	units := []Unit{
		unit("dup", passing()),
		unit("other", passing()),
		unit("dup", passing()),
	}
	result := newTestRunner(nil).RunShard(context.Background(), units, shard.Config[Unit]{
		Count: shard.Static("3"),
		Index: shard.Static("2"),
	})
	assert.Equal(t, &types.DuplicateTestName{Name: "dup"}, result.Err)
}
