package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testkit/diff"
	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/retry"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

var errNoAction = errors.New("test has no action")

// Executor runs leaf tests. Every attempt races the test action against the
// attempt deadline; failed attempts are replayed while the retry policy of
// the test allows.
type Executor struct {
	log    log.Logger
	tracer trace.Tracer
}

// NewExecutor creates an executor logging to logger
func NewExecutor(logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Root()
	}
	return &Executor{
		log:    logger.New("component", "executor"),
		tracer: otel.Tracer("test executor"),
	}
}

// Run executes test until it passes or its retry policy stops, and returns
// the terminal result under name.
func (e *Executor) Run(ctx context.Context, name string, test *types.Test) types.Result {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("test %s", name))
	defer span.End()

	if test == nil {
		return e.fail(span, name, &types.UnhandledException{Exception: errNoAction}, 0, 0)
	}

	policy := test.EffectiveRetry()
	timeout := test.EffectiveTimeout()

	for attempts := 1; ; attempts++ {
		elapsed, err := e.attempt(ctx, test.Act, timeout)
		if err == nil {
			e.log.Debug("Test passed", "test", name, "attempts", attempts, "elapsed", elapsed)
			metrics.RecordTest(types.TestStatusPass, "", attempts, elapsed)
			span.SetAttributes(attribute.Int("test.attempts", attempts))
			return types.Passed(name, &types.TestSuccess{Elapsed: elapsed, Attempts: attempts})
		}

		decision := policy.Next(attempts)
		if !decision.Retry || attempts >= retry.MaxBudget {
			return e.fail(span, name, err, attempts, elapsed)
		}

		e.log.Debug("Retrying test", "test", name, "attempt", attempts, "kind", err.Kind(), "delay", decision.Delay, "error", err)
		if !sleep(ctx, decision.Delay) {
			e.log.Warn("Context done while waiting to retry test", "test", name, "attempt", attempts)
			return e.fail(span, name, err, attempts, elapsed)
		}
	}
}

func (e *Executor) fail(span trace.Span, name string, err types.TestError, attempts int, elapsed time.Duration) types.Result {
	e.log.Debug("Test failed", "test", name, "attempts", attempts, "kind", err.Kind(), "error", err)
	metrics.RecordTest(types.TestStatusFail, err.Kind(), attempts, elapsed)
	span.SetAttributes(
		attribute.Int("test.attempts", attempts),
		attribute.String("test.error_kind", string(err.Kind())),
	)
	span.SetStatus(codes.Error, err.Error())
	return types.Failed(name, &types.TestFailure{Err: err, Attempts: attempts})
}

// attempt runs act once under timeout. The action runs on its own goroutine;
// when the deadline passes first its context is cancelled and its eventual
// outcome is discarded.
func (e *Executor) attempt(ctx context.Context, act types.Action, timeout time.Duration) (time.Duration, types.TestError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outcome := make(chan types.TestError, 1)
	go func() {
		outcome <- settle(attemptCtx, act)
	}()

	select {
	case err := <-outcome:
		return time.Since(start), err
	case <-attemptCtx.Done():
	}

	elapsed := time.Since(start)
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return elapsed, &types.TimedOut{After: timeout}
	}
	return elapsed, &types.UnhandledException{Exception: attemptCtx.Err()}
}

// settle runs the action and asserts on what it produced. Panics and
// returned errors become UnhandledException.
func settle(ctx context.Context, act types.Action) (err types.TestError) {
	defer func() {
		if r := recover(); r != nil {
			err = &types.UnhandledException{Exception: r}
		}
	}()

	if act == nil {
		return &types.UnhandledException{Exception: errNoAction}
	}
	v, actErr := act(ctx)
	if actErr != nil {
		return &types.UnhandledException{Exception: actErr}
	}
	return diff.Assert(v)
}

// sleep waits for d and reports false if ctx is done first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
