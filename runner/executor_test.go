package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/retry"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

func terminalError(t *testing.T, r types.Result) types.TestError {
	t.Helper()
	require.Equal(t, types.TestStatusFail, r.Status)
	var failure *types.TestFailure
	require.ErrorAs(t, r.Err, &failure)
	return failure.Err
}

func TestExecutorPass(t *testing.T) {
	e := NewExecutor(discardLogger())
	r := e.Run(context.Background(), "ok", passing())

	require.True(t, r.OK())
	assert.Equal(t, "ok", r.Name)
	success, ok := r.Success.(*types.TestSuccess)
	require.True(t, ok)
	assert.Equal(t, 1, success.Attempts)
}

func TestExecutorClassifiesFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		test  *types.Test
		kind  types.ErrorKind
		check func(t *testing.T, err types.TestError)
	}{
		{
			name: "values differ",
			test: failing(),
			kind: types.ErrorKindAssertion,
		},
		{
			name: "value cannot be rendered",
			test: &types.Test{Act: func(context.Context) (types.ActualVsExpected, error) {
				return types.ActualVsExpected{Actual: []any{func() {}}, Expected: []any{1}}, nil
			}},
			kind: types.ErrorKindSerialization,
			check: func(t *testing.T, err types.TestError) {
				assert.Equal(t, "$[0]", err.(*types.SerializationError).Path)
			},
		},
		{
			name: "returned error",
			test: &types.Test{Act: func(context.Context) (types.ActualVsExpected, error) {
				return types.ActualVsExpected{}, boom
			}},
			kind: types.ErrorKindUnhandledException,
			check: func(t *testing.T, err types.TestError) {
				assert.ErrorIs(t, err, boom)
			},
		},
		{
			name: "panic",
			test: &types.Test{Act: func(context.Context) (types.ActualVsExpected, error) {
				panic("kaboom")
			}},
			kind: types.ErrorKindUnhandledException,
			check: func(t *testing.T, err types.TestError) {
				assert.Equal(t, "kaboom", err.(*types.UnhandledException).Exception)
			},
		},
		{
			name: "missing action",
			test: &types.Test{},
			kind: types.ErrorKindUnhandledException,
		},
		{
			name: "timed out",
			test: &types.Test{
				Timeout: 20 * time.Millisecond,
				Act: func(context.Context) (types.ActualVsExpected, error) {
					time.Sleep(time.Hour)
					return types.ActualVsExpected{}, nil
				},
			},
			kind: types.ErrorKindTimedOut,
			check: func(t *testing.T, err types.TestError) {
				assert.Equal(t, 20*time.Millisecond, err.(*types.TimedOut).After)
			},
		},
	}

	e := NewExecutor(discardLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := terminalError(t, e.Run(context.Background(), tt.name, tt.test))
			assert.Equal(t, tt.kind, err.Kind())
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestExecutorNilTest(t *testing.T) {
	e := NewExecutor(discardLogger())
	err := terminalError(t, e.Run(context.Background(), "nil", nil))
	assert.Equal(t, types.ErrorKindUnhandledException, err.Kind())
}

func TestExecutorSettlesJustUnderDeadline(t *testing.T) {
	e := NewExecutor(discardLogger())
	r := e.Run(context.Background(), "slow", &types.Test{
		Timeout: time.Second,
		Act:     sleepy(20 * time.Millisecond),
	})
	assert.True(t, r.OK())

	r = e.Run(context.Background(), "slow failure", &types.Test{
		Timeout: time.Second,
		Act: func(context.Context) (types.ActualVsExpected, error) {
			time.Sleep(20 * time.Millisecond)
			return types.ActualVsExpected{Actual: "a", Expected: "b"}, nil
		},
	})
	assert.Equal(t, types.ErrorKindAssertion, terminalError(t, r).Kind())
}

func TestExecutorCancelsTimedOutAttempt(t *testing.T) {
	observed := make(chan struct{})
	e := NewExecutor(discardLogger())
	r := e.Run(context.Background(), "hang", &types.Test{
		Timeout: 10 * time.Millisecond,
		Act: func(ctx context.Context) (types.ActualVsExpected, error) {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			close(observed)
			// the result is discarded by the executor
			return types.ActualVsExpected{Actual: 1, Expected: 1}, nil
		},
	})
	assert.Equal(t, types.ErrorKindTimedOut, terminalError(t, r).Kind())

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("abandoned action never observed cancellation")
	}
}

func TestExecutorDefaultTimeout(t *testing.T) {
	var deadline time.Time
	e := NewExecutor(discardLogger())
	start := time.Now()
	r := e.Run(context.Background(), "deadline", &types.Test{
		Act: func(ctx context.Context) (types.ActualVsExpected, error) {
			deadline, _ = ctx.Deadline()
			return types.ActualVsExpected{}, nil
		},
	})
	require.True(t, r.OK())
	assert.WithinDuration(t, start.Add(types.DefaultTimeout), deadline, time.Second)
}

func TestExecutorRetryBudget(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		policy   retry.Policy
		pass     bool
		attempts int
	}{
		{name: "no retries by default", failures: 1, policy: nil, pass: false, attempts: 1},
		{name: "enough retries", failures: 2, policy: retry.Limit(2), pass: true, attempts: 3},
		{name: "more retries than needed", failures: 2, policy: retry.Limit(5), pass: true, attempts: 3},
		{name: "one retry short", failures: 3, policy: retry.Limit(2), pass: false, attempts: 3},
		{name: "first attempt passes", failures: 0, policy: retry.Limit(2), pass: true, attempts: 1},
	}

	e := NewExecutor(discardLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			r := e.Run(context.Background(), tt.name, &types.Test{
				Act:   failTimes(tt.failures, &calls),
				Retry: tt.policy,
			})

			assert.Equal(t, tt.pass, r.OK())
			assert.Equal(t, int32(tt.attempts), calls.Load())
			if tt.pass {
				assert.Equal(t, tt.attempts, r.Success.(*types.TestSuccess).Attempts)
			} else {
				assert.Equal(t, tt.attempts, r.Err.(*types.TestFailure).Attempts)
				assert.Equal(t, types.ErrorKindUnhandledException, terminalError(t, r).Kind())
			}
		})
	}
}

func TestExecutorRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	e := NewExecutor(discardLogger())
	r := e.Run(context.Background(), "flaky", &types.Test{
		Timeout: 20 * time.Millisecond,
		Retry:   retry.Limit(1),
		Act: func(ctx context.Context) (types.ActualVsExpected, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				time.Sleep(20 * time.Millisecond)
			}
			return types.ActualVsExpected{Actual: 1, Expected: 1}, nil
		},
	})
	require.True(t, r.OK())
	assert.Equal(t, 2, r.Success.(*types.TestSuccess).Attempts)
}

func TestExecutorElapsedIsThatOfPassingAttempt(t *testing.T) {
	var calls atomic.Int32
	e := NewExecutor(discardLogger())
	r := e.Run(context.Background(), "elapsed", &types.Test{
		Retry: retry.Limit(1),
		Act: func(context.Context) (types.ActualVsExpected, error) {
			if calls.Add(1) == 1 {
				time.Sleep(200 * time.Millisecond)
				return types.ActualVsExpected{}, errors.New("slow failure")
			}
			return types.ActualVsExpected{}, nil
		},
	})
	require.True(t, r.OK())
	assert.Less(t, r.Success.(*types.TestSuccess).Elapsed, 200*time.Millisecond)
}

func TestExecutorWaitsRetryDelay(t *testing.T) {
	var calls atomic.Int32
	e := NewExecutor(discardLogger())
	start := time.Now()
	r := e.Run(context.Background(), "delayed", &types.Test{
		Act:   failTimes(1, &calls),
		Retry: retry.Fixed(1, 50*time.Millisecond),
	})
	require.True(t, r.OK())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestExecutorStopsRetryingWhenContextDone(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e := NewExecutor(discardLogger())
	start := time.Now()
	r := e.Run(ctx, "cancelled", &types.Test{
		Act:   failTimes(10, &calls),
		Retry: retry.Fixed(10, time.Hour),
	})
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, r.Err.(*types.TestFailure).Attempts)
}
