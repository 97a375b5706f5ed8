package testkit

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testkit/flags"
	"github.com/ethereum-optimism/infra/op-testkit/runner"
	"github.com/ethereum-optimism/infra/op-testkit/shard"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Config holds the application configuration
type Config struct {
	SuiteFile      string
	RunInterval    time.Duration // Interval between suite runs
	RunOnce        bool          // Indicates if the service should exit after one run
	DefaultTimeout time.Duration // Attempt timeout for tests that do not set one
	Serial         bool          // Run top-level units sequentially instead of in parallel
	FailFast       bool          // With Serial, skip the remaining units after the first failure
	Concurrency    int           // Limit of parallel top-level units (0 = unbounded)

	ShardingEnabled bool
	ShardCount      shard.Provider
	ShardIndex      shard.Provider
	ShardStrategy   string

	ReportDir   string // Directory receiving a summary per run, empty disables it
	HealthzAddr string
	Metrics     opmetrics.CLIConfig
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suiteFile := ctx.String(flags.Suite.Name)
	if suiteFile == "" {
		return nil, errors.New("suite file is required")
	}
	absSuiteFile, err := filepath.Abs(suiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite file '%s': %w", suiteFile, err)
	}

	var reportDir string
	if dir := ctx.String(flags.ReportDir.Name); dir != "" {
		reportDir, err = filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", dir, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run-interval must not be negative, got %v", runInterval)
	}

	serial := ctx.Bool(flags.Serial.Name)
	failFast := ctx.Bool(flags.FailFast.Name)
	if failFast && !serial {
		return nil, errors.New("fail-fast requires serial")
	}
	concurrency := ctx.Int(flags.Concurrency.Name)
	if serial && concurrency > 0 {
		return nil, errors.New("concurrency cannot be combined with serial")
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		SuiteFile:       absSuiteFile,
		RunInterval:     runInterval,
		RunOnce:         runInterval == 0,
		DefaultTimeout:  ctx.Duration(flags.DefaultTimeout.Name),
		Serial:          serial,
		FailFast:        failFast,
		Concurrency:     concurrency,
		ShardingEnabled: ctx.IsSet(flags.ShardCount.Name) || ctx.IsSet(flags.ShardIndex.Name),
		ShardCount:      shard.Flag(ctx, flags.ShardCount.Name),
		ShardIndex:      shard.Flag(ctx, flags.ShardIndex.Name),
		ShardStrategy:   ctx.String(flags.ShardStrategy.Name),
		ReportDir:       reportDir,
		HealthzAddr:     ctx.String(flags.HealthzAddr.Name),
		Metrics:         metricsCfg,
		Log:             log,
	}, nil
}

// TopLevelConcurrency returns the policy the command line selects for the
// top-level units, or nil when the suite file decides.
func (c *Config) TopLevelConcurrency() types.Concurrency {
	switch {
	case c.Serial:
		return types.Sequential{FailFast: c.FailFast}
	case c.Concurrency > 0:
		return types.Parallel{Limit: c.Concurrency}
	default:
		return nil
	}
}

// ShardConfig builds the sharding configuration over top-level units
func (c *Config) ShardConfig() (shard.Config[runner.Unit], error) {
	strategy, err := shard.StrategyByName[runner.Unit](c.ShardStrategy)
	if err != nil {
		return shard.Config[runner.Unit]{}, err
	}
	return shard.Config[runner.Unit]{
		Count:    c.ShardCount,
		Index:    c.ShardIndex,
		Strategy: strategy,
	}, nil
}
