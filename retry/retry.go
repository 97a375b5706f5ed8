// Package retry models retry policies as pure state machines.
//
// A Policy is consulted after every failed attempt with the number of
// attempts made so far and answers whether another attempt should run and
// how long to wait before it. Policies hold no state of their own, so one
// value can be shared across tests and inspected without running anything.
package retry

import (
	"time"

	opretry "github.com/ethereum-optimism/optimism/op-service/retry"
)

// MaxBudget bounds Budget for policies that never stop on their own
const MaxBudget = 1 << 16

// Decision is the answer of a Policy after a failed attempt
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Stop is the decision not to try again
var Stop = Decision{}

// After is the decision to try again once d has elapsed
func After(d time.Duration) Decision {
	return Decision{Retry: true, Delay: d}
}

// Policy maps the number of attempts made so far (at least 1) to a Decision
type Policy interface {
	Next(attempts int) Decision
}

// PolicyFunc adapts a function to a Policy
type PolicyFunc func(attempts int) Decision

func (f PolicyFunc) Next(attempts int) Decision {
	return f(attempts)
}

type never struct{}

func (never) Next(int) Decision {
	return Stop
}

// Never allows exactly one attempt
func Never() Policy {
	return never{}
}

// Limited allows Retries attempts after the first one, with no delay
type Limited struct {
	Retries int
}

// Limit returns a policy allowing the given number of retries
func Limit(retries int) Policy {
	return Limited{Retries: retries}
}

func (l Limited) Next(attempts int) Decision {
	if attempts <= l.Retries {
		return After(0)
	}
	return Stop
}

// backoff delays every retry decision of an inner policy
type backoff struct {
	inner    Policy
	strategy opretry.Strategy
}

// WithBackoff keeps the stop decisions of p and sets the delay of each retry
// from strategy. The strategy receives the zero-based retry number.
func WithBackoff(p Policy, strategy opretry.Strategy) Policy {
	return backoff{inner: p, strategy: strategy}
}

func (b backoff) Next(attempts int) Decision {
	d := b.inner.Next(attempts)
	if !d.Retry {
		return Stop
	}
	return After(b.strategy.Duration(attempts - 1))
}

// Fixed allows the given number of retries, each after the same delay
func Fixed(retries int, delay time.Duration) Policy {
	return WithBackoff(Limit(retries), opretry.Fixed(delay))
}

// Exponential allows the given number of retries with exponentially growing
// delays between minDelay and maxDelay.
func Exponential(retries int, minDelay, maxDelay time.Duration) Policy {
	return WithBackoff(Limit(retries), &opretry.ExponentialStrategy{Min: minDelay, Max: maxDelay})
}

// Budget returns the total number of attempts p allows, counting the first,
// capped at MaxBudget.
func Budget(p Policy) int {
	attempts := 1
	for attempts < MaxBudget && p.Next(attempts).Retry {
		attempts++
	}
	return attempts
}
