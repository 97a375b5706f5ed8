package retry

import (
	"testing"
	"time"

	opretry "github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNever(t *testing.T) {
	p := Never()
	for attempts := 1; attempts < 5; attempts++ {
		assert.Equal(t, Stop, p.Next(attempts))
	}
	assert.Equal(t, 1, Budget(p))
}

func TestLimit(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		budget  int
	}{
		{name: "zero retries", retries: 0, budget: 1},
		{name: "one retry", retries: 1, budget: 2},
		{name: "several retries", retries: 4, budget: 5},
		{name: "negative retries behave like zero", retries: -3, budget: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Limit(tt.retries)
			assert.Equal(t, tt.budget, Budget(p))
			for attempts := 1; attempts < tt.budget; attempts++ {
				d := p.Next(attempts)
				assert.True(t, d.Retry, "attempt %d should be retried", attempts)
				assert.Zero(t, d.Delay)
			}
			assert.False(t, p.Next(tt.budget).Retry)
		})
	}
}

func TestLimitIsPure(t *testing.T) {
	p := Limit(2)
	first := []Decision{p.Next(1), p.Next(2), p.Next(3)}
	second := []Decision{p.Next(1), p.Next(2), p.Next(3)}
	assert.Equal(t, first, second)
}

func TestFixedDelay(t *testing.T) {
	p := Fixed(2, 50*time.Millisecond)

	assert.Equal(t, After(50*time.Millisecond), p.Next(1))
	assert.Equal(t, After(50*time.Millisecond), p.Next(2))
	assert.Equal(t, Stop, p.Next(3))
	assert.Equal(t, 3, Budget(p))
}

type recordingStrategy struct {
	seen []int
}

func (r *recordingStrategy) Duration(attempt int) time.Duration {
	r.seen = append(r.seen, attempt)
	return time.Duration(attempt+1) * time.Millisecond
}

var _ opretry.Strategy = (*recordingStrategy)(nil)

func TestWithBackoffPassesRetryNumber(t *testing.T) {
	strategy := &recordingStrategy{}
	p := WithBackoff(Limit(3), strategy)

	assert.Equal(t, After(1*time.Millisecond), p.Next(1))
	assert.Equal(t, After(2*time.Millisecond), p.Next(2))
	assert.Equal(t, After(3*time.Millisecond), p.Next(3))
	assert.Equal(t, Stop, p.Next(4))

	// the strategy is not consulted once the inner policy stops
	require.Equal(t, []int{0, 1, 2}, strategy.seen)
}

func TestExponentialStaysWithinMax(t *testing.T) {
	p := Exponential(5, 0, 2*time.Second)
	for attempts := 1; attempts <= 5; attempts++ {
		d := p.Next(attempts)
		require.True(t, d.Retry)
		assert.LessOrEqual(t, d.Delay, 2*time.Second)
	}
	assert.False(t, p.Next(6).Retry)
}

func TestPolicyFunc(t *testing.T) {
	p := PolicyFunc(func(attempts int) Decision {
		if attempts%2 == 1 {
			return After(time.Second)
		}
		return Stop
	})
	assert.Equal(t, After(time.Second), p.Next(1))
	assert.Equal(t, Stop, p.Next(2))
	assert.Equal(t, 2, Budget(p))
}

func TestBudgetIsCapped(t *testing.T) {
	forever := PolicyFunc(func(int) Decision { return After(0) })
	assert.Equal(t, MaxBudget, Budget(forever))
}
