// Package types contains shared types used across the testkit engine
package types

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/retry"
)

// DefaultTimeout bounds a single attempt of a test when the test does not set its own
const DefaultTimeout = 5 * time.Second

// PathSeparator joins the names of nested units into a scoped name
const PathSeparator = "/"

// TestStatus represents the possible states of a unit after a run
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// Named attaches a reporting name to a value. Units and results both carry one.
type Named[T any] struct {
	Name  string
	Value T
}

// NewNamed is shorthand for building a Named value
func NewNamed[T any](name string, value T) Named[T] {
	return Named[T]{Name: name, Value: value}
}

// ActualVsExpected is what a test action produces for the assertion engine
type ActualVsExpected struct {
	Actual   any
	Expected any
}

// Action is the body of a test. The context is cancelled once the attempt has
// timed out; the engine does not wait for the action to observe it.
type Action func(ctx context.Context) (ActualVsExpected, error)

// TestUnit is either a *Test or a *Group
type TestUnit interface {
	unit()
}

// Test is a leaf unit
type Test struct {
	Act     Action
	Timeout time.Duration // zero means DefaultTimeout
	Retry   retry.Policy  // nil means retry.Never()
}

// Group is a list of named units run under one concurrency policy
type Group struct {
	Concurrency Concurrency // nil means Sequential{FailFast: true}
	Tests       []Named[TestUnit]
}

func (*Test) unit()  {}
func (*Group) unit() {}

// EffectiveTimeout returns the attempt deadline to use for the test
func (t *Test) EffectiveTimeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

// EffectiveRetry returns the retry policy to use for the test
func (t *Test) EffectiveRetry() retry.Policy {
	if t.Retry == nil {
		return retry.Never()
	}
	return t.Retry
}

// EffectiveConcurrency returns the concurrency policy to use for the group
func (g *Group) EffectiveConcurrency() Concurrency {
	if g.Concurrency == nil {
		return Sequential{FailFast: true}
	}
	return g.Concurrency
}

// Concurrency is either Parallel or Sequential
type Concurrency interface {
	concurrency()
	fmt.Stringer
}

// Parallel launches every unit at once. Limit caps the number of units in
// flight; zero means no cap.
type Parallel struct {
	Limit int
}

// Sequential runs one unit at a time in order. With FailFast the first
// failure stops further launches and the rest are reported as skipped.
type Sequential struct {
	FailFast bool
}

func (Parallel) concurrency()   {}
func (Sequential) concurrency() {}

func (p Parallel) String() string {
	if p.Limit > 0 {
		return fmt.Sprintf("parallel(limit=%d)", p.Limit)
	}
	return "parallel"
}

func (s Sequential) String() string {
	if s.FailFast {
		return "sequential(fail-fast)"
	}
	return "sequential"
}

// undefined is the type of Undefined
type undefined struct{}

// Undefined is a value that is distinct from nil. It renders as the bare
// literal `undefined`, whereas nil renders as `null` and the string
// "undefined" renders quoted.
var Undefined = undefined{}

// CountTests returns the number of leaf tests in the given units
func CountTests(units []Named[TestUnit]) int {
	total := 0
	for _, u := range units {
		switch v := u.Value.(type) {
		case *Test:
			total++
		case *Group:
			total += CountTests(v.Tests)
		}
	}
	return total
}

// ParseTestNameHierarchy splits a scoped name like "group/sub/test" into its
// path. Returns depth (0=top-level, 1=first nested level, etc.) and the path.
func ParseTestNameHierarchy(testName string) (depth int, path []string) {
	if testName == "" {
		return 0, []string{}
	}

	cleanPath := make([]string, 0)
	for _, element := range strings.Split(testName, PathSeparator) {
		if element != "" {
			cleanPath = append(cleanPath, element)
		}
	}

	if len(cleanPath) == 0 {
		return 0, []string{}
	}

	return len(cleanPath) - 1, cleanPath
}

// BuildHierarchyPath creates a scoped name from its path elements, skipping empty ones
func BuildHierarchyPath(names ...string) string {
	path := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			path = append(path, name)
		}
	}
	return strings.Join(path, PathSeparator)
}

// LeafName returns the last element of a scoped name
func LeafName(scopedName string) string {
	_, path := ParseTestNameHierarchy(scopedName)
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}
