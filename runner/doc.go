// Package runner executes trees of test units.
//
// The main components are:
//   - Executor: runs a leaf test, racing each attempt against its deadline and
//     replaying failed attempts while the test's retry policy allows
//   - Schedule: runs sibling units in parallel, sequentially or sequentially
//     stopping at the first failure, always returning results in input order
//   - AllOrNothing and StopAtFirstFailure: the two folds over sibling results
//   - Scope and FindDuplicate: name scoping and duplicate detection applied
//     to the tree before anything runs
//   - TestRunner: ties these together into one suite result per run
package runner
