package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often and how fast an operation is repeated.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = defaultInitialBackoff
	}
	exp.MaxInterval = p.MaxBackoff
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = defaultMaxBackoff
	}
	// attempts are bounded by MaxRetries, not elapsed time
	exp.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// temporary is implemented by errors that know whether a repeat may succeed,
// such as *binance.APIError.
type temporary interface {
	Temporary() bool
}

// IsRetryable reports whether err is worth another attempt. Context
// cancellation and errors that declare themselves non-temporary are final;
// everything else (transport failures, timeouts of a single attempt) is
// retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Do runs op until it succeeds, returns a non-retryable error, or the policy
// is exhausted. onRetry, when non-nil, is called before each wait.
func Do[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error), onRetry func(error, time.Duration)) (T, error) {
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy.backOff(ctx), onRetry)
}
