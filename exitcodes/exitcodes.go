// Package exitcodes defines the standard exit codes used by op-testkit.
package exitcodes

// Exit code constants used by op-testkit
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every unit of the suite passes
// * TestFailure (1): Used when the suite fails, including duplicate names and sharding errors
// * RuntimeErr (2): Used for runtime errors such as bad flags or an unreadable suite
const (
	Success     = 0 // Suite passed
	TestFailure = 1 // Suite failed
	RuntimeErr  = 2 // Runtime errors
)
