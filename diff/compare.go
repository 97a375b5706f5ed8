package diff

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Lines diffs two renderings. Lines only in expected are Removed, lines only
// in actual are Added. Within a replaced block removals come first.
func Lines(expected, actual []string) []types.Change {
	// autojunk would treat frequent structural lines such as "}," as junk on
	// large renderings and produce noisy diffs
	matcher := difflib.NewMatcherWithJunk(expected, actual, false, nil)

	changes := make([]types.Change, 0, max(len(expected), len(actual)))
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			changes = appendLines(changes, types.ChangeUnchanged, expected[op.I1:op.I2])
		case 'd':
			changes = appendLines(changes, types.ChangeRemoved, expected[op.I1:op.I2])
		case 'i':
			changes = appendLines(changes, types.ChangeAdded, actual[op.J1:op.J2])
		case 'r':
			changes = appendLines(changes, types.ChangeRemoved, expected[op.I1:op.I2])
			changes = appendLines(changes, types.ChangeAdded, actual[op.J1:op.J2])
		}
	}
	return changes
}

func appendLines(changes []types.Change, kind types.ChangeKind, lines []string) []types.Change {
	for _, line := range lines {
		changes = append(changes, types.Change{Kind: kind, Text: line})
	}
	return changes
}

// HasChanges reports whether any line was added or removed
func HasChanges(changes []types.Change) bool {
	for _, c := range changes {
		if c.Kind != types.ChangeUnchanged {
			return true
		}
	}
	return false
}

// Compare renders both values and diffs them. Expected is rendered first, so
// when both contain unrenderable values the path reported is the one in
// expected.
func Compare(expected, actual any) ([]types.Change, *types.SerializationError) {
	expectedLines, err := Render(expected)
	if err != nil {
		return nil, err.(*types.SerializationError)
	}
	actualLines, err := Render(actual)
	if err != nil {
		return nil, err.(*types.SerializationError)
	}
	return Lines(expectedLines, actualLines), nil
}

// Assert decides the outcome of a test from the values its action produced.
// It returns nil when the renderings are identical, a *types.AssertionError
// carrying the full change list when they differ, or the
// *types.SerializationError from rendering.
func Assert(v types.ActualVsExpected) types.TestError {
	changes, serr := Compare(v.Expected, v.Actual)
	if serr != nil {
		return serr
	}
	if HasChanges(changes) {
		return &types.AssertionError{
			Changes:  changes,
			Expected: v.Expected,
			Actual:   v.Actual,
		}
	}
	return nil
}
