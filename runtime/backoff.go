package runtime

import "time"

// RetryPolicy drives reliable delivery: pure exponential backoff, no jitter.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

// Delay returns min(base * 2^retryCount, max) for a record that already
// went through retryCount retries.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := p.BaseBackoff
	for i := 0; i < retryCount; i++ {
		// Doubling past the cap is pointless and would eventually overflow
		if delay >= p.MaxBackoff {
			break
		}
		delay *= 2
	}
	if delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}
