package types

import (
	"fmt"
	"strings"
	"time"
)

// ChangeKind classifies one line of a diff
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Change is one line of a diff between the rendered expected and actual values
type Change struct {
	Kind ChangeKind
	Text string
}

// String renders the change with a unified-diff style marker
func (c Change) String() string {
	switch c.Kind {
	case ChangeAdded:
		return "+ " + c.Text
	case ChangeRemoved:
		return "- " + c.Text
	default:
		return "  " + c.Text
	}
}

// ErrorKind names a TestError variant
type ErrorKind string

const (
	ErrorKindSerialization      ErrorKind = "serialization"
	ErrorKindAssertion          ErrorKind = "assertion"
	ErrorKindTimedOut           ErrorKind = "timed_out"
	ErrorKindUnhandledException ErrorKind = "unhandled_exception"
)

// AllErrorKinds lists every TestError variant. Code that switches over kinds
// is tested against this list.
var AllErrorKinds = []ErrorKind{
	ErrorKindSerialization,
	ErrorKindAssertion,
	ErrorKindTimedOut,
	ErrorKindUnhandledException,
}

// TestError is the failure of a single test attempt. Implemented by
// *SerializationError, *AssertionError, *TimedOut and *UnhandledException.
type TestError interface {
	error
	Kind() ErrorKind
	testError()
}

// SerializationError reports the first path of a value that has no canonical rendering
type SerializationError struct {
	Path   string
	Reason string
}

// AssertionError reports that expected and actual rendered differently
type AssertionError struct {
	Changes  []Change
	Expected any
	Actual   any
}

// TimedOut reports that an attempt did not settle before its deadline
type TimedOut struct {
	After time.Duration
}

// UnhandledException wraps an error returned by, or a panic raised in, a test action
type UnhandledException struct {
	Exception any
}

func (*SerializationError) testError() {}
func (*AssertionError) testError()     {}
func (*TimedOut) testError()           {}
func (*UnhandledException) testError() {}

func (*SerializationError) Kind() ErrorKind { return ErrorKindSerialization }
func (*AssertionError) Kind() ErrorKind     { return ErrorKindAssertion }
func (*TimedOut) Kind() ErrorKind           { return ErrorKindTimedOut }
func (*UnhandledException) Kind() ErrorKind { return ErrorKindUnhandledException }

func (e *SerializationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot serialize value at %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("cannot serialize value at %s", e.Path)
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	b.WriteString("expected and actual values differ")
	for _, c := range e.Changes {
		if c.Kind == ChangeUnchanged {
			continue
		}
		b.WriteString("\n")
		b.WriteString(c.String())
	}
	return b.String()
}

func (e *TimedOut) Error() string {
	return fmt.Sprintf("timed out after %v", e.After)
}

func (e *UnhandledException) Error() string {
	return fmt.Sprintf("unhandled exception: %v", e.Exception)
}

// Unwrap exposes the exception when it is an error
func (e *UnhandledException) Unwrap() error {
	if err, ok := e.Exception.(error); ok {
		return err
	}
	return nil
}

// TestUnitSuccess is the success value of a unit: *TestSuccess or *GroupSuccess
type TestUnitSuccess interface {
	unitSuccess()
}

// TestSuccess is a passing leaf test
type TestSuccess struct {
	Elapsed  time.Duration // duration of the attempt that passed
	Attempts int
}

// GroupSuccess holds the ordered successes of every child
type GroupSuccess struct {
	Results []Named[TestUnitSuccess]
}

func (*TestSuccess) unitSuccess()  {}
func (*GroupSuccess) unitSuccess() {}

// TestUnitError is the failure value of a unit: *TestFailure or *GroupError
type TestUnitError interface {
	error
	unitError()
}

// TestFailure is a failing leaf test with its terminal error
type TestFailure struct {
	Err      TestError
	Attempts int
}

// GroupError holds every child outcome, successes included, in input order
type GroupError struct {
	Results []Result
}

func (*TestFailure) unitError() {}
func (*GroupError) unitError()  {}

func (e *TestFailure) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%v (after %d attempts)", e.Err, e.Attempts)
	}
	return e.Err.Error()
}

// Unwrap returns the terminal test error
func (e *TestFailure) Unwrap() error {
	return e.Err
}

func (e *GroupError) Error() string {
	failed := make([]string, 0)
	for _, r := range e.Results {
		if r.Status == TestStatusFail {
			failed = append(failed, r.Name)
		}
	}
	return fmt.Sprintf("%d of %d units failed: %s", len(failed), len(e.Results), strings.Join(failed, ", "))
}

// Result is the outcome of one named unit. A pass carries Success, a fail
// carries Err, a skip carries neither.
type Result struct {
	Name    string
	Status  TestStatus
	Success TestUnitSuccess
	Err     TestUnitError
}

// Passed builds a passing result
func Passed(name string, success TestUnitSuccess) Result {
	return Result{Name: name, Status: TestStatusPass, Success: success}
}

// Failed builds a failing result
func Failed(name string, err TestUnitError) Result {
	return Result{Name: name, Status: TestStatusFail, Err: err}
}

// Skipped builds a result for a unit that was never launched
func Skipped(name string) Result {
	return Result{Name: name, Status: TestStatusSkip}
}

// OK reports whether the result is a pass
func (r Result) OK() bool {
	return r.Status == TestStatusPass
}
