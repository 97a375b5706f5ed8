package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/shard"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Unit aliases the named test unit the runner consumes
type Unit = types.Named[types.TestUnit]

// TestRunner runs suites of test units
type TestRunner interface {
	Run(ctx context.Context, units []Unit) types.SuiteResult
	RunShard(ctx context.Context, units []Unit, cfg shard.Config[Unit]) types.SuiteResult
}

// Config is used to create a new runner
type Config struct {
	Log         log.Logger
	Concurrency types.Concurrency // policy for top-level units, nil means Parallel{}
}

type runner struct {
	log         log.Logger
	tracer      trace.Tracer
	executor    *Executor
	concurrency types.Concurrency
}

var _ TestRunner = (*runner)(nil)

// NewTestRunner creates a new runner
func NewTestRunner(cfg Config) TestRunner {
	logger := cfg.Log
	if logger == nil {
		logger = log.Root()
	}
	concurrency := cfg.Concurrency
	if concurrency == nil {
		concurrency = types.Parallel{}
	}

	logger.Debug("NewTestRunner()", "concurrency", concurrency)

	return &runner{
		log:         logger,
		tracer:      otel.Tracer("test runner"),
		executor:    NewExecutor(logger),
		concurrency: concurrency,
	}
}

// Run scopes the names of units, rejects duplicates and runs every unit,
// folding the top-level results into one suite result.
func (r *runner) Run(ctx context.Context, units []Unit) types.SuiteResult {
	return r.run(ctx, Scope(units), nil)
}

// RunShard runs only the shard of units selected by cfg. Duplicates are
// checked across every unit before sharding, so all shards agree on whether
// the suite is valid.
func (r *runner) RunShard(ctx context.Context, units []Unit, cfg shard.Config[Unit]) types.SuiteResult {
	scoped := Scope(units)
	return r.run(ctx, scoped, func(ctx context.Context) ([]Unit, types.SuiteError) {
		selected, serr := shard.Select(ctx, cfg, scoped)
		if serr != nil {
			return nil, &types.ShardingFailed{Err: serr}
		}
		r.log.Info("Selected shard", "units", len(selected), "total", len(scoped), "tests", types.CountTests(selected))
		return selected, nil
	})
}

func (r *runner) run(ctx context.Context, scoped []Unit, selectShard func(context.Context) ([]Unit, types.SuiteError)) types.SuiteResult {
	runID := uuid.New().String()
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", runID))
	defer span.End()

	r.log.Debug("Running all tests", "run_id", runID, "units", len(scoped))

	finish := func(result types.SuiteResult) types.SuiteResult {
		result.RunID = runID
		result.Duration = time.Since(start)
		r.record(span, result)
		return result
	}

	if name, dup := FindDuplicate(scoped); dup {
		r.log.Error("Duplicate test name", "run_id", runID, "name", name)
		return finish(types.SuiteResult{Err: &types.DuplicateTestName{Name: name}})
	}

	if selectShard != nil {
		selected, serr := selectShard(ctx)
		if serr != nil {
			r.log.Error("Sharding failed", "run_id", runID, "error", serr)
			return finish(types.SuiteResult{Err: serr})
		}
		scoped = selected
	}

	results := Schedule(ctx, r.concurrency, r.executions(scoped))
	if successes, ok := AllOrNothing(results); ok {
		return finish(types.SuiteResult{Successes: successes})
	}
	return finish(types.SuiteResult{Err: &types.TestRunError{Results: results}})
}

func (r *runner) record(span trace.Span, result types.SuiteResult) {
	stats := result.Stats()
	status := types.TestStatusPass
	if !result.OK() {
		status = types.TestStatusFail
		span.SetStatus(codes.Error, result.Err.Error())
	}
	span.SetAttributes(
		attribute.String("run.id", result.RunID),
		attribute.Int("run.tests", stats.Total),
		attribute.Int("run.failed", stats.Failed),
	)
	metrics.RecordSuite(result.RunID, status, stats, result.Duration)

	r.log.Info("Test run completed",
		"run_id", result.RunID,
		"status", status,
		"total", stats.Total,
		"passed", stats.Passed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", result.Duration)
}

func (r *runner) executions(units []Unit) []Execution {
	executions := make([]Execution, len(units))
	for i, u := range units {
		executions[i] = Execution{
			Name: u.Name,
			Run: func(ctx context.Context) types.Result {
				return r.runUnit(ctx, u)
			},
		}
	}
	return executions
}

// runUnit interprets one unit: leaf tests go to the executor, groups are
// scheduled under their own concurrency policy.
func (r *runner) runUnit(ctx context.Context, unit Unit) types.Result {
	switch u := unit.Value.(type) {
	case *types.Test:
		return r.executor.Run(ctx, unit.Name, u)
	case *types.Group:
		if u == nil {
			return types.Passed(unit.Name, &types.GroupSuccess{Results: []types.Named[types.TestUnitSuccess]{}})
		}
		return r.runGroup(ctx, unit.Name, u)
	default:
		return types.Failed(unit.Name, &types.TestFailure{
			Err: &types.UnhandledException{Exception: fmt.Errorf("unsupported test unit %T", unit.Value)},
		})
	}
}

func (r *runner) runGroup(ctx context.Context, name string, g *types.Group) types.Result {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("group %s", name))
	defer span.End()

	policy := g.EffectiveConcurrency()
	span.SetAttributes(attribute.String("group.concurrency", policy.String()))
	r.log.Debug("Running group", "group", name, "tests", len(g.Tests), "concurrency", policy)

	results := Schedule(ctx, policy, r.executions(g.Tests))
	if successes, ok := AllOrNothing(results); ok {
		return types.Passed(name, &types.GroupSuccess{Results: successes})
	}

	groupErr := &types.GroupError{Results: results}
	span.SetStatus(codes.Error, groupErr.Error())
	return types.Failed(name, groupErr)
}
