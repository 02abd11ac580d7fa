package settle

import "time"

// RetryBuilder provides a fluent way to construct the OnFail policy passed
// to WithRetry.
type RetryBuilder struct {
	policy OnFail
}

// Retry creates a RetryBuilder allowing attempts retries after the first
// failure of an item.
//
// attempts < 0 is treated as 0 (no retries).
func Retry(attempts int) RetryBuilder {
	if attempts < 0 {
		attempts = 0
	}
	return RetryBuilder{
		policy: OnFail{
			Attempts: attempts,
		},
	}
}

// WithDelay waits delay before every retry.
//
// Example:
//
//	settle.Retry(3).WithDelay(250 * time.Millisecond)
func (r RetryBuilder) WithDelay(delay time.Duration) RetryBuilder {
	p := r.policy
	if delay < 0 {
		delay = 0
	}
	p.Delay = delay
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries will still respect the attempt budget.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.Delay = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying OnFail policy.
func (r RetryBuilder) Policy() OnFail {
	return r.policy
}
