// Package shard partitions a test list across independent runner instances.
//
// A runner learns the shard count and its own 1-based shard index from
// providers, partitions the full list with a strategy and keeps only its
// shard. Every runner sees the same list and strategy, so concatenating the
// shards of all runners reproduces the list exactly.
package shard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Strategy splits tests into exactly shardCount shards
type Strategy[T any] func(shardCount int, tests []T) ([][]T, error)

// Config describes how a runner selects its shard
type Config[T any] struct {
	Count    Provider
	Index    Provider
	Strategy Strategy[T] // nil means Contiguous
}

// Select returns the shard of tests this runner is responsible for
func Select[T any](ctx context.Context, cfg Config[T], tests []T) ([]T, types.ShardingError) {
	count, serr := resolveCount(ctx, cfg.Count)
	if serr != nil {
		return nil, serr
	}
	index, serr := resolveIndex(ctx, cfg.Index)
	if serr != nil {
		return nil, serr
	}

	strategy := cfg.Strategy
	if strategy == nil {
		strategy = Contiguous[T]
	}
	shards, err := strategy(count, tests)
	if err != nil {
		return nil, &types.ShardingStrategyError{Err: err}
	}
	if len(shards) != count {
		return nil, &types.ShardingStrategyError{Err: fmt.Errorf("strategy returned %d shards, want %d", len(shards), count)}
	}

	total := 0
	for _, s := range shards {
		total += len(s)
	}
	if total != len(tests) {
		return nil, &types.TestCountChangedAfterSharding{Before: len(tests), After: total}
	}

	if index < 1 || index > count {
		return nil, &types.ShardIndexOutOfBound{Index: index, ShardCount: count}
	}
	return shards[index-1], nil
}

func resolveCount(ctx context.Context, p Provider) (int, types.ShardingError) {
	raw, ok := lookup(ctx, p)
	if !ok {
		return 0, &types.ShardCountUnspecified{}
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 {
		return 0, &types.ShardCountNotANumber{Value: raw}
	}
	return count, nil
}

func resolveIndex(ctx context.Context, p Provider) (int, types.ShardingError) {
	raw, ok := lookup(ctx, p)
	if !ok {
		return 0, &types.ShardIndexUnspecified{}
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &types.ShardIndexNotANumber{Value: raw}
	}
	return index, nil
}

func lookup(ctx context.Context, p Provider) (string, bool) {
	if p == nil {
		return "", false
	}
	raw, ok := p.Lookup(ctx)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// Contiguous splits tests into consecutive chunks of ceil(len/shardCount)
// tests. Trailing shards may be smaller or empty.
func Contiguous[T any](shardCount int, tests []T) ([][]T, error) {
	if shardCount < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", shardCount)
	}
	size := (len(tests) + shardCount - 1) / shardCount
	shards := make([][]T, shardCount)
	for i := range shards {
		start := min(i*size, len(tests))
		end := min(start+size, len(tests))
		shards[i] = tests[start:end]
	}
	return shards, nil
}

// RoundRobin deals tests to shards in turn, so shard sizes differ by at most one
func RoundRobin[T any](shardCount int, tests []T) ([][]T, error) {
	if shardCount < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", shardCount)
	}
	shards := make([][]T, shardCount)
	for i := range shards {
		shards[i] = make([]T, 0, len(tests)/shardCount+1)
	}
	for i, t := range tests {
		shards[i%shardCount] = append(shards[i%shardCount], t)
	}
	return shards, nil
}

// StrategyByName resolves a strategy from its configuration name
func StrategyByName[T any](name string) (Strategy[T], error) {
	switch name {
	case "", StrategyContiguous:
		return Contiguous[T], nil
	case StrategyRoundRobin:
		return RoundRobin[T], nil
	default:
		return nil, fmt.Errorf("unknown sharding strategy %q, must be one of: %s, %s", name, StrategyContiguous, StrategyRoundRobin)
	}
}

const (
	StrategyContiguous = "contiguous"
	StrategyRoundRobin = "round-robin"
)
