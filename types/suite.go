package types

import (
	"fmt"
	"time"
)

// SuiteError is the failure of a whole suite: *DuplicateTestName,
// *ShardingFailed or *TestRunError.
type SuiteError interface {
	error
	suiteError()
}

// DuplicateTestName is raised before execution when two units share a scoped name
type DuplicateTestName struct {
	Name string
}

// ShardingFailed wraps the reason the shard for this runner could not be selected
type ShardingFailed struct {
	Err ShardingError
}

// TestRunError carries every top-level result, successes included, when at
// least one top-level unit did not pass.
type TestRunError struct {
	Results []Result
}

func (*DuplicateTestName) suiteError() {}
func (*ShardingFailed) suiteError()    {}
func (*TestRunError) suiteError()      {}

func (e *DuplicateTestName) Error() string {
	return fmt.Sprintf("duplicate test name: %q", e.Name)
}

func (e *ShardingFailed) Error() string {
	return fmt.Sprintf("sharding failed: %v", e.Err)
}

// Unwrap returns the sharding error
func (e *ShardingFailed) Unwrap() error {
	return e.Err
}

func (e *TestRunError) Error() string {
	stats := StatsOf(e.Results)
	return fmt.Sprintf("test run failed: %d passed, %d failed, %d skipped", stats.Passed, stats.Failed, stats.Skipped)
}

// ShardingError explains why a shard could not be selected
type ShardingError interface {
	error
	shardingError()
}

type ShardCountUnspecified struct{}

type ShardCountNotANumber struct {
	Value string
}

type ShardIndexUnspecified struct{}

type ShardIndexNotANumber struct {
	Value string
}

type ShardIndexOutOfBound struct {
	Index      int
	ShardCount int
}

type TestCountChangedAfterSharding struct {
	Before int
	After  int
}

// ShardingStrategyError wraps a failure of the partition strategy itself
type ShardingStrategyError struct {
	Err error
}

func (*ShardCountUnspecified) shardingError()         {}
func (*ShardCountNotANumber) shardingError()          {}
func (*ShardIndexUnspecified) shardingError()         {}
func (*ShardIndexNotANumber) shardingError()          {}
func (*ShardIndexOutOfBound) shardingError()          {}
func (*TestCountChangedAfterSharding) shardingError() {}
func (*ShardingStrategyError) shardingError()         {}

func (*ShardCountUnspecified) Error() string { return "shard count unspecified" }

func (e *ShardCountNotANumber) Error() string {
	return fmt.Sprintf("shard count is not a positive number: %q", e.Value)
}

func (*ShardIndexUnspecified) Error() string { return "shard index unspecified" }

func (e *ShardIndexNotANumber) Error() string {
	return fmt.Sprintf("shard index is not a number: %q", e.Value)
}

func (e *ShardIndexOutOfBound) Error() string {
	return fmt.Sprintf("shard index %d out of bounds [1, %d]", e.Index, e.ShardCount)
}

func (e *TestCountChangedAfterSharding) Error() string {
	return fmt.Sprintf("test count changed after sharding: %d before, %d after", e.Before, e.After)
}

func (e *ShardingStrategyError) Error() string {
	return fmt.Sprintf("sharding strategy failed: %v", e.Err)
}

// Unwrap returns the strategy failure
func (e *ShardingStrategyError) Unwrap() error {
	return e.Err
}

// SuiteResult is the outcome of a suite run. Err is nil iff every top-level
// unit passed, in which case Successes holds them in order.
type SuiteResult struct {
	RunID     string
	Duration  time.Duration
	Successes []Named[TestUnitSuccess]
	Err       SuiteError
}

// OK reports whether the suite passed. The process exit code is derived from this.
func (r SuiteResult) OK() bool {
	return r.Err == nil
}

// Results returns the top-level results regardless of outcome. It is empty
// when the suite failed before running anything.
func (r SuiteResult) Results() []Result {
	if r.Err == nil {
		results := make([]Result, len(r.Successes))
		for i, s := range r.Successes {
			results[i] = Passed(s.Name, s.Value)
		}
		return results
	}
	if runErr, ok := r.Err.(*TestRunError); ok {
		return runErr.Results
	}
	return nil
}

// Stats counts leaf tests across the whole result tree
func (r SuiteResult) Stats() ResultStats {
	return StatsOf(r.Results())
}

// String implements fmt.Stringer
func (r SuiteResult) String() string {
	stats := r.Stats()
	status := TestStatusPass
	if !r.OK() {
		status = TestStatusFail
	}
	return fmt.Sprintf("run %s %s: %d tests, %d passed, %d failed, %d skipped (%v)",
		r.RunID, status, stats.Total, stats.Passed, stats.Failed, stats.Skipped, r.Duration)
}

// ResultStats tracks leaf test counts
type ResultStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// StatsOf counts leaf tests in a list of results. A skipped group counts as
// a single skipped entry since its children were never expanded.
func StatsOf(results []Result) ResultStats {
	var stats ResultStats
	for _, r := range results {
		stats.add(statsOfResult(r))
	}
	return stats
}

func (s *ResultStats) add(o ResultStats) {
	s.Total += o.Total
	s.Passed += o.Passed
	s.Failed += o.Failed
	s.Skipped += o.Skipped
}

func statsOfResult(r Result) ResultStats {
	switch r.Status {
	case TestStatusSkip:
		return ResultStats{Total: 1, Skipped: 1}
	case TestStatusPass:
		return statsOfSuccess(r.Success)
	default:
		if group, ok := r.Err.(*GroupError); ok {
			return StatsOf(group.Results)
		}
		return ResultStats{Total: 1, Failed: 1}
	}
}

func statsOfSuccess(s TestUnitSuccess) ResultStats {
	group, ok := s.(*GroupSuccess)
	if !ok {
		return ResultStats{Total: 1, Passed: 1}
	}
	var stats ResultStats
	for _, child := range group.Results {
		stats.add(statsOfSuccess(child.Value))
	}
	return stats
}
