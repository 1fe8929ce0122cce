package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"optionchain/internal/retry"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestDo_AlwaysFailing_ThreeAttemptsWithBackoff(t *testing.T) {
	t.Parallel()

	// Arrange: an operation that fails every time with a distinct error
	rec := &sleepRecorder{}
	exec := &retry.Executor{Log: zap.NewNop(), Sleep: rec.sleep}
	calls := 0
	var last error
	op := func(context.Context) (string, error) {
		calls++
		last = fmt.Errorf("boom %d", calls)
		return "", last
	}

	// Act
	_, err := retry.Do(t.Context(), exec, retry.Policy{MaxAttempts: 3, InitialDelay: time.Second}, "op", op)

	// Assert: exactly 3 attempts, 1s then 2s, last error surfaced unchanged
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
	require.Same(t, last, err)
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	exec := &retry.Executor{Sleep: rec.sleep}
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	}

	v, err := retry.Do(t.Context(), exec, retry.Policy{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond}, "op", op)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
}

func TestDo_FirstAttemptSucceeds_NoSleep(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	exec := &retry.Executor{Sleep: rec.sleep}
	v, err := retry.Do(t.Context(), exec, retry.Policy{MaxAttempts: 3, InitialDelay: time.Second}, "op",
		func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Empty(t, rec.delays)
}

func TestDo_ZeroAttempts_RunsOnce(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	calls := 0
	_, err := retry.Do(t.Context(), &retry.Executor{Sleep: rec.sleep}, retry.Policy{}, "op",
		func(context.Context) (struct{}, error) { calls++; return struct{}{}, errors.New("x") })
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.delays)
}

func TestDo_CancelledDuringWait_StopsWithLastError(t *testing.T) {
	t.Parallel()

	// Arrange: sleep reports cancellation after the first failure
	ctx, cancel := context.WithCancel(t.Context())
	exec := &retry.Executor{Sleep: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}}
	calls := 0
	want := errors.New("first")

	// Act
	_, err := retry.Do(ctx, exec, retry.Policy{MaxAttempts: 4, InitialDelay: time.Second}, "op",
		func(context.Context) (int, error) { calls++; return 0, want })

	// Assert
	require.Equal(t, 1, calls)
	require.Same(t, want, err)
}

func TestDo_NilExecutor(t *testing.T) {
	t.Parallel()

	v, err := retry.Do(t.Context(), nil, retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond}, "op",
		func(context.Context) (string, error) { return "x", nil })
	require.NoError(t, err)
	require.Equal(t, "x", v)
}

func TestSleepContext_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := retry.SleepContext(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := retry.Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second}
	require.Equal(t, 2*time.Second, p.Delay(0))
	require.Equal(t, 4*time.Second, p.Delay(1))
	require.Equal(t, 8*time.Second, p.Delay(2))
}

func TestPolicy_Delay_SaturatesOnLargeAttempts(t *testing.T) {
	t.Parallel()

	p := retry.Policy{MaxAttempts: 100, InitialDelay: time.Second}
	for _, attempt := range []int{12, 63, 64, 99} {
		d := p.Delay(attempt)
		require.Positive(t, d, "attempt %d", attempt)
		require.Equal(t, time.Hour, d, "attempt %d", attempt)
	}
	require.Equal(t, 2048*time.Second, p.Delay(11))
	require.Zero(t, retry.Policy{MaxAttempts: 3}.Delay(70))
}
