package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Delay_Default_Schedule(t *testing.T) {
	req := require.New(t)
	policy := DefaultRetryPolicy()

	req.Equal(1*time.Second, policy.Delay(0))
	req.Equal(2*time.Second, policy.Delay(1))
	req.Equal(4*time.Second, policy.Delay(2))
	req.Equal(8*time.Second, policy.Delay(3))
	// Capped thereafter
	req.Equal(10*time.Second, policy.Delay(4))
	req.Equal(10*time.Second, policy.Delay(100))
}

func TestRetryPolicy_Delay_Negative_Count(t *testing.T) {
	req := require.New(t)
	policy := RetryPolicy{MaxRetries: 1, BaseBackoff: 250 * time.Millisecond, MaxBackoff: time.Second}

	req.Equal(250*time.Millisecond, policy.Delay(-1))
}
