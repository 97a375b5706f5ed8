// Package testkit runs data-driven test suites, once or periodically, and
// reports their results.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-testkit/exitcodes"
	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/reporting"
	"github.com/ethereum-optimism/infra/op-testkit/runner"
	"github.com/ethereum-optimism/infra/op-testkit/service"
	"github.com/ethereum-optimism/infra/op-testkit/shard"
	"github.com/ethereum-optimism/infra/op-testkit/suite"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// testkit implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &testkit{}

// testkit loads a suite and runs it through the test runner.
type testkit struct {
	ctx     context.Context
	config  *Config
	version string
	suite   *suite.Suite
	runner  runner.TestRunner
	shard   *shard.Config[runner.Unit]
	service *service.Service
	table   *reporting.TableFormatter
	sink    *reporting.TextSummarySink
	out     io.Writer

	mu     sync.Mutex
	result *types.SuiteResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*testkit, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating testkit with config",
		"suite", config.SuiteFile,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"serial", config.Serial,
		"concurrency", config.Concurrency,
		"sharding", config.ShardingEnabled)

	s, err := suite.Load(suite.Config{
		Log:            config.Log.New("component", "suite"),
		SuiteFile:      config.SuiteFile,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load suite: %w", err)
	}

	concurrency := config.TopLevelConcurrency()
	if concurrency == nil {
		concurrency = s.Concurrency
	}
	testRunner := runner.NewTestRunner(runner.Config{
		Log:         config.Log.New("component", "runner"),
		Concurrency: concurrency,
	})

	k := &testkit{
		ctx:              ctx,
		config:           config,
		version:          version,
		suite:            s,
		runner:           testRunner,
		table:            reporting.NewTableFormatter(fmt.Sprintf("Suite %s", s.Name), true, false),
		out:              os.Stdout,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}

	if config.ShardingEnabled {
		shardCfg, err := config.ShardConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to configure sharding: %w", err)
		}
		k.shard = &shardCfg
	}
	if config.ReportDir != "" {
		k.sink = reporting.NewTextSummarySink(config.ReportDir, true)
	}
	if !config.RunOnce {
		k.service = service.New(config.Log.New("component", "service"), service.Config{
			HealthzAddr: config.HealthzAddr,
			Metrics:     config.Metrics,
		})
	}
	config.Log.Info("testkit.New: loaded suite and created test runner", "suite", s.Name, "tests", s.Tests())

	return k, nil
}

// Start runs the suite immediately and then, outside of run-once mode, at the
// configured interval.
// Start implements the cliapp.Lifecycle interface.
func (k *testkit) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			k.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	k.ctx = ctx
	k.done = make(chan struct{})
	k.running.Store(true)

	if k.config.RunOnce {
		k.config.Log.Info("Starting op-testkit in run-once mode")
	} else {
		k.config.Log.Info("Starting op-testkit in continuous mode", "interval", k.config.RunInterval)
		if k.service != nil {
			if err := k.service.Start(ctx); err != nil {
				k.running.Store(false)
				return NewRuntimeError(err)
			}
		}
	}

	result := k.runTests(ctx)

	if k.config.RunOnce {
		k.config.Log.Info("Suite completed, exiting (run-once mode)")
		k.running.Store(false)

		if !result.OK() {
			k.config.Log.Warn("Run-once suite run completed with failures, returning exit code 1")
			return NewTestFailureError(result.String())
		}

		// Only need to call this when we're in run-once mode and the suite passed
		go func() {
			k.shutdownCallback(nil)
		}()
		return nil
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.config.Log.Debug("Starting periodic suite runner goroutine", "interval", k.config.RunInterval)

		for {
			select {
			case <-time.After(k.config.RunInterval):
				if !k.running.Load() {
					k.config.Log.Debug("Service stopped, exiting periodic suite runner")
					return
				}

				k.config.Log.Info("Running periodic suite")
				k.runTests(ctx)
				k.config.Log.Info("Suite run interval", "interval", k.config.RunInterval)

			case <-k.done:
				k.config.Log.Debug("Done signal received, stopping periodic suite runner")
				return

			case <-ctx.Done():
				k.config.Log.Debug("Context canceled, stopping periodic suite runner")
				k.running.Store(false)
				return
			}
		}
	}()
	k.config.Log.Debug("op-testkit started successfully")
	return nil
}

// runTests runs the suite once and reports the result
func (k *testkit) runTests(ctx context.Context) types.SuiteResult {
	k.config.Log.Info("Running suite...", "suite", k.suite.Name)

	var result types.SuiteResult
	if k.shard != nil {
		result = k.runner.RunShard(ctx, k.suite.Units, *k.shard)
	} else {
		result = k.runner.Run(ctx, k.suite.Units)
	}
	k.mu.Lock()
	k.result = &result
	k.mu.Unlock()

	k.printResults(result)

	if k.sink != nil {
		path, err := k.sink.Write(result)
		if err != nil {
			k.config.Log.Error("Failed to write run summary", "error", err)
			metrics.RecordErrorDetails("summary", err)
		} else {
			k.config.Log.Info("Wrote run summary", "path", path)
		}
	}
	if k.service != nil {
		k.service.Healthz.SetSuiteResult(result.OK())
	}

	k.config.Log.Info("Suite run completed", "run_id", result.RunID, "ok", result.OK())
	return result
}

// printResults prints the result table and a one-line summary
func (k *testkit) printResults(result types.SuiteResult) {
	k.config.Log.Info("Printing results...")
	k.table.Write(k.out, reporting.BuildTree(result))
	fmt.Fprintln(k.out, result.String())
}

// LastResult returns the result of the most recent run, if any
func (k *testkit) LastResult() (types.SuiteResult, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.result == nil {
		return types.SuiteResult{}, false
	}
	return *k.result, true
}

// Stop stops the op-testkit service.
// Stop implements the cliapp.Lifecycle interface.
func (k *testkit) Stop(ctx context.Context) error {
	k.config.Log.Info("Stopping op-testkit")

	var result error
	if k.service != nil && !k.config.RunOnce {
		if err := k.service.Shutdown(ctx); err != nil {
			result = errors.Join(result, err)
		}
	}

	if !k.running.Load() {
		k.config.Log.Debug("Service already stopped, nothing to do")
		return result
	}

	// Update running state first to prevent new suite runs
	k.running.Store(false)

	k.config.Log.Debug("Sending done signal to goroutines")
	close(k.done)

	k.config.Log.Info("op-testkit stopped successfully")
	return result
}

// Stopped returns true if the op-testkit service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (k *testkit) Stopped() bool {
	return !k.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (k *testkit) WaitForShutdown(ctx context.Context) error {
	k.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		k.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		k.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
