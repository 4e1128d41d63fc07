package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransientMarking(t *testing.T) {
	t.Parallel()

	if Transient(nil) != nil {
		t.Fatalf("Transient(nil) should stay nil")
	}

	cause := errors.New("overloaded")
	wrapped := fmt.Errorf("call: %w", TransientAfter(cause, time.Second))
	if !IsTransient(wrapped) {
		t.Fatalf("IsTransient() lost the mark through wrapping")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("transient error does not unwrap to its cause")
	}
	var te *TransientError
	if !errors.As(wrapped, &te) || te.After != time.Second {
		t.Fatalf("After = %v, want 1s", te)
	}
	if wrapped.Error() != "call: overloaded" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if IsTransient(cause) {
		t.Fatalf("unmarked error reported as transient")
	}
}

func TestRetryPolicyWithDefaults(t *testing.T) {
	t.Parallel()

	got := RetryPolicy{}.WithDefaults()
	want := RetryPolicy{MaxRetries: defaultRetryMaxRetries, BaseDelay: defaultRetryBaseDelay, MaxDelay: defaultRetryMaxDelay}
	if got != want {
		t.Fatalf("WithDefaults() = %+v, want %+v", got, want)
	}

	got = RetryPolicy{MaxRetries: -1, BaseDelay: time.Millisecond}.WithDefaults()
	if got.MaxRetries != 0 || got.BaseDelay != time.Millisecond || got.MaxDelay != defaultRetryMaxDelay {
		t.Fatalf("WithDefaults(disabled) = %+v", got)
	}
}

func TestRetryPolicyOverride(t *testing.T) {
	t.Parallel()

	base := RetryPolicy{MaxRetries: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}

	if got := base.Override(RetryPolicy{}); got != base {
		t.Fatalf("Override(empty) = %+v, want %+v", got, base)
	}

	got := base.Override(RetryPolicy{MaxRetries: 4, BaseDelay: 50 * time.Millisecond})
	want := RetryPolicy{MaxRetries: 4, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	if got != want {
		t.Fatalf("Override() = %+v, want %+v", got, want)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
	for attempt, nominal := range []time.Duration{100, 200, 400, 500, 500} {
		nominal *= time.Millisecond
		for range 20 {
			got := policy.Backoff(attempt)
			if got < nominal*8/10 || got > nominal*12/10 {
				t.Fatalf("Backoff(%d) = %v, want within 20%% of %v", attempt, got, nominal)
			}
		}
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	fast := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	transient := Transient(errors.New("overloaded"))

	tests := []struct {
		name      string
		failures  int
		err       error
		canRetry  func() bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", wantCalls: 1},
		{name: "recovers", failures: 2, err: transient, wantCalls: 3},
		{name: "budget exhausted", failures: 5, err: transient, wantCalls: 3, wantErr: true},
		{name: "permanent", failures: 5, err: errors.New("bad request"), wantCalls: 1, wantErr: true},
		{name: "vetoed", failures: 5, err: transient, canRetry: func() bool { return false }, wantCalls: 1, wantErr: true},
		{name: "canceled", failures: 5, err: Transient(context.Canceled), wantCalls: 1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fast, func(context.Context) error {
				calls++
				if calls <= tc.failures {
					return tc.err
				}
				return nil
			}, tc.canRetry)
			if (err != nil) != tc.wantErr || calls != tc.wantCalls {
				t.Fatalf("Retry() = %v after %d calls, want error=%v after %d", err, calls, tc.wantErr, tc.wantCalls)
			}
		})
	}
}

func TestRetryWaitsForServerHintWithinMaxDelay(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 30 * time.Millisecond}
	calls := 0
	start := time.Now()
	err := Retry(context.Background(), policy, func(context.Context) error {
		calls++
		if calls == 1 {
			return TransientAfter(errors.New("rate limited"), time.Hour)
		}
		return nil
	}, nil)
	elapsed := time.Since(start)
	if err != nil || calls != 2 {
		t.Fatalf("Retry() = %v after %d calls", err, calls)
	}
	if elapsed < 30*time.Millisecond || elapsed > 10*time.Second {
		t.Fatalf("waited %v, want the hint capped at MaxDelay", elapsed)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("SleepContext(canceled) = %v", err)
	}
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("SleepContext() = %v", err)
	}
}
