package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff for transient provider
// failures.
type RetryPolicy struct {
	MaxRetries int           // retry attempts after the initial call
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // ceiling for computed and hinted delays
	Multiplier float64       // backoff factor per attempt
	Jitter     bool          // randomize delays to avoid thundering herd
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default policy: 2 retries, 1s base delay,
// doubling with jitter, capped at 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay calculates the backoff delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if ceiling := float64(p.MaxDelay); d > ceiling {
		d = ceiling
	}
	if p.Jitter {
		// +/- 50%
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// nextDelay picks the wait before the next attempt. A rate limiter's
// Retry-After hint overrides the computed backoff; a hint beyond MaxDelay
// means waiting is pointless and the attempt budget is abandoned.
func (p RetryPolicy) nextDelay(err error, attempt int) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
		if hinted > p.MaxDelay {
			return 0, false
		}
		return hinted, true
	}
	return p.Delay(attempt), true
}

// Retry executes fn under the policy. Only errors IsRetryable accepts are
// retried; cancellation during a backoff wait surfaces as an AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return zero, err
		}

		delay, ok := policy.nextDelay(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{BackendError: BackendError{
				Message: "request cancelled during retry",
				Cause:   ctx.Err(),
			}}
		case <-time.After(delay):
		}
	}
}

// RetryMiddleware wraps provider calls in Retry so every Client.Complete
// gets the policy's backoff without the adapters knowing about it.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}
