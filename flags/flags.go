package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testkit/shard"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

const EnvVarPrefix = "OP_TESTKIT"

var (
	Suite = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:    "Path to the suite definition file (eg. 'suite.yaml')",
	}
	ShardCount = &cli.StringFlag{
		Name:    "shard-count",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHARD_COUNT"),
		Usage:   "Total number of shards the suite is split into. Sharding is enabled when this or --shard-index is set.",
	}
	ShardIndex = &cli.StringFlag{
		Name:    "shard-index",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHARD_INDEX"),
		Usage:   "1-based index of the shard to run",
	}
	ShardStrategy = &cli.StringFlag{
		Name:    "shard-strategy",
		Value:   shard.StrategyContiguous,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHARD_STRATEGY"),
		Usage:   fmt.Sprintf("How top-level units are split between shards (%s, %s)", shard.StrategyContiguous, shard.StrategyRoundRobin),
		Action: func(_ *cli.Context, v string) error {
			return validateShardStrategy(v)
		},
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   types.DefaultTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout of a single test attempt when the suite does not set one",
		Action: func(_ *cli.Context, v time.Duration) error {
			if v <= 0 {
				return fmt.Errorf("default-timeout must be positive, got %v", v)
			}
			return nil
		},
	}
	Serial = &cli.BoolFlag{
		Name:    "serial",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERIAL"),
		Usage:   "Run top-level units one at a time instead of in parallel",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAIL_FAST"),
		Usage:   "With --serial, skip the remaining top-level units after the first failure",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Maximum number of top-level units running at once. 0 means no limit.",
		Action: func(_ *cli.Context, v int) error {
			if v < 0 {
				return fmt.Errorf("concurrency must not be negative, got %d", v)
			}
			return nil
		},
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory receiving a summary.log per run. Reports are not persisted when empty.",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz server in periodic mode",
	}
)

var requiredFlags = []cli.Flag{
	Suite,
}

var optionalFlags = []cli.Flag{
	ShardCount,
	ShardIndex,
	ShardStrategy,
	DefaultTimeout,
	Serial,
	FailFast,
	Concurrency,
	RunInterval,
	ReportDir,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

func validateShardStrategy(v string) error {
	_, err := shard.StrategyByName[types.Named[types.TestUnit]](v)
	return err
}
