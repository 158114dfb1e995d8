package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseWait: time.Millisecond, Factor: 2, Jitter: 0.2}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return mnemo.Errorf(mnemo.KindTransient, "provider timeout")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("bad input")
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return mnemo.Errorf(mnemo.KindTransient, "still down")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Policy{MaxAttempts: 3, BaseWait: time.Minute, Factor: 2}.Do(ctx, func() error {
		return mnemo.Errorf(mnemo.KindTransient, "down")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryableStatus(t *testing.T) {
	require.True(t, RetryableStatus(429))
	require.True(t, RetryableStatus(500))
	require.True(t, RetryableStatus(503))
	require.True(t, RetryableStatus(504))
	require.False(t, RetryableStatus(400))
	require.False(t, RetryableStatus(404))
}

type statusErr int

func (e statusErr) Error() string   { return "api error" }
func (e statusErr) StatusCode() int { return int(e) }

func TestRetryableAPIError(t *testing.T) {
	require.True(t, Retryable(statusErr(429)))
	require.False(t, Retryable(statusErr(400)))
	require.False(t, Retryable(errors.New("plain")))
}

func TestRetryableWrappedAPIError(t *testing.T) {
	require.True(t, Retryable(fmt.Errorf("calling provider: %w", statusErr(503))))
	require.False(t, Retryable(fmt.Errorf("calling provider: %w", statusErr(404))))
}

func TestDelayGrows(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseWait: 100 * time.Millisecond, Factor: 2}
	require.Equal(t, 100*time.Millisecond, p.Delay(1))
	require.Equal(t, 200*time.Millisecond, p.Delay(2))
	require.Equal(t, 400*time.Millisecond, p.Delay(3))
}
