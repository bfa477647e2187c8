package workflow

import (
	"context"
	"math/rand"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/sirupsen/logrus"
)

// RetryPolicy controls how transient failures (lock wait timeouts, deadlocks)
// are retried. Each attempt is a fresh database transaction, so a retried
// operation never observes the partial state of a previous attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times after the initial attempt.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  50 * time.Millisecond,
	MaxDelay:   2 * time.Second,
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	// jitter up to half the delay so colliding workers desynchronize
	return delay + time.Duration(rand.Int63n(int64(delay/2)+1))
}

// RunWithRetry invokes op until it succeeds, fails with a non-retryable
// error, or the policy is exhausted. Business rejections (validation,
// insufficient stock) are returned immediately; only contention errors are
// retried. On exhaustion the last contention error is wrapped in
// ExhaustedRetriesError.
func RunWithRetry[T any](ctx context.Context, policy RetryPolicy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := config.GetLogger()

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !utils.IsRetryable(err) {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			return zero, &utils.ExhaustedRetriesError{Operation: name, Attempts: attempt + 1, Last: err}
		}

		delay := policy.backoff(attempt)
		logger.WithFields(logrus.Fields{
			"module":    "retry",
			"operation": name,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
			"error":     err.Error(),
		}).Warn("transient failure, retrying")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
