package reporting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// maxMessageLen bounds a single-line error message in the console table
const maxMessageLen = 80

// KeyErrorMessage extracts the most pertinent line of a unit error for display
func KeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var failure *types.TestFailure
	if errors.As(err, &failure) {
		msg := SummarizeTestError(failure.Err)
		if failure.Attempts > 1 {
			msg = fmt.Sprintf("%s (after %d attempts)", msg, failure.Attempts)
		}
		return msg
	}

	var group *types.GroupError
	if errors.As(err, &group) {
		stats := types.StatsOf(group.Results)
		return fmt.Sprintf("%d of %d tests failed", stats.Failed, stats.Total)
	}

	return firstLine(err.Error())
}

// SummarizeTestError summarises a test error on a single line
func SummarizeTestError(err types.TestError) string {
	if err == nil {
		return ""
	}

	switch err.Kind() {
	case types.ErrorKindAssertion:
		if e, ok := err.(*types.AssertionError); ok {
			for _, c := range e.Changes {
				if c.Kind != types.ChangeUnchanged {
					return "assertion failed: " + c.String()
				}
			}
		}
		return "assertion failed"
	case types.ErrorKindSerialization, types.ErrorKindTimedOut, types.ErrorKindUnhandledException:
		return firstLine(err.Error())
	default:
		return firstLine(fmt.Sprintf("%s: %v", err.Kind(), err))
	}
}

// firstLine limits a message to its first line or maxMessageLen characters
func firstLine(msg string) string {
	if idx := strings.Index(msg, "\n"); idx != -1 {
		msg = msg[:idx]
	}
	if runes := []rune(msg); len(runes) > maxMessageLen {
		return string(runes[:maxMessageLen-3]) + "..."
	}
	return msg
}
