package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	defaultRetryMaxRetries = 3
	defaultRetryBaseDelay  = 300 * time.Millisecond
	defaultRetryMaxDelay   = 5 * time.Second
)

// WithDefaults fills unset fields. MaxRetries below zero disables retries;
// zero means unset.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	switch {
	case p.MaxRetries < 0:
		p.MaxRetries = 0
	case p.MaxRetries == 0:
		p.MaxRetries = defaultRetryMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryMaxDelay
	}
	return p
}

// Override applies the positive fields of o on top of p's defaults. MaxDelay
// never ends up below BaseDelay.
func (p RetryPolicy) Override(o RetryPolicy) RetryPolicy {
	out := p.WithDefaults()
	if o.MaxRetries > 0 {
		out.MaxRetries = o.MaxRetries
	}
	if o.BaseDelay > 0 {
		out.BaseDelay = o.BaseDelay
	}
	if o.MaxDelay > 0 {
		out.MaxDelay = o.MaxDelay
	}
	out.MaxDelay = max(out.MaxDelay, out.BaseDelay)
	return out
}

// Backoff is the wait before retry number attempt (zero based): BaseDelay
// doubled per attempt, capped at MaxDelay, then scaled by a random factor in
// [0.8, 1.2).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	nominal := p.BaseDelay
	for range attempt {
		if nominal >= p.MaxDelay {
			break
		}
		nominal *= 2
	}
	nominal = min(nominal, p.MaxDelay)
	return time.Duration(float64(nominal) * (0.8 + 0.4*rand.Float64()))
}

// TransientError wraps a failure that may succeed when repeated.
// After, when positive, is the minimum wait the remote side asked for.
type TransientError struct {
	Err   error
	After time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable. Nil stays nil.
func Transient(err error) error {
	return TransientAfter(err, 0)
}

// TransientAfter is Transient with a server supplied minimum wait.
func TransientAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, After: after}
}

// IsTransient reports whether err or anything it wraps was marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Retry calls op until it succeeds, fails permanently, or runs out of
// retries. Context errors are never retried. When canRetry is non-nil and
// returns false the last error is returned immediately.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error, canRetry func() bool) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var te *TransientError
		if !errors.As(err, &te) || attempt >= policy.MaxRetries {
			return err
		}
		if canRetry != nil && !canRetry() {
			return err
		}
		wait := policy.Backoff(attempt)
		if te.After > wait {
			wait = min(te.After, policy.MaxDelay)
		}
		if err := SleepContext(ctx, wait); err != nil {
			return err
		}
	}
}

// SleepContext waits for delay or until ctx is done.
func SleepContext(ctx context.Context, delay time.Duration) error {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
