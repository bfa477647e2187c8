package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  time.Millisecond,
	MaxDelay:   5 * time.Millisecond,
}

func TestRunWithRetrySucceedsAfterContention(t *testing.T) {
	attempts := 0
	result, err := RunWithRetry(context.Background(), testPolicy, "op", func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, &utils.ContentionError{Err: errors.New("lock wait timeout")}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRunWithRetryDoesNotRetryBusinessRejections(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"validation", &utils.ValidationError{Field: "qty", Reason: "must be greater than zero"}},
		{"insufficient stock", &utils.InsufficientStockError{ProductId: 7}},
		{"already reversed", utils.ErrAlreadyReversed},
		{"persistence", &utils.PersistenceError{Op: "create sale", Err: errors.New("boom")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			_, err := RunWithRetry(context.Background(), testPolicy, "op", func(ctx context.Context) (int, error) {
				attempts++
				return 0, tc.err
			})
			assert.Equal(t, tc.err, err, "error must pass through unchanged")
			assert.Equal(t, 1, attempts, "non-retryable errors get exactly one attempt")
		})
	}
}

func TestRunWithRetryExhaustsBudget(t *testing.T) {
	last := &utils.ContentionError{Err: errors.New("deadlock found")}
	attempts := 0
	_, err := RunWithRetry(context.Background(), testPolicy, "CreateSale", func(ctx context.Context) (int, error) {
		attempts++
		return 0, last
	})

	require.Error(t, err)
	var ee *utils.ExhaustedRetriesError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, testPolicy.MaxRetries+1, attempts, "initial attempt plus MaxRetries retries")
	assert.Equal(t, attempts, ee.Attempts)
	assert.Equal(t, "CreateSale", ee.Operation)
	assert.ErrorIs(t, ee, last.Err)
}

func TestRunWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := RunWithRetry(ctx, testPolicy, "op", func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, &utils.ContentionError{Err: errors.New("lock wait timeout")}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "no further attempts after cancellation")
}

func TestBackoffIsCappedAndPositive(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		delay := testPolicy.backoff(attempt)
		assert.Greater(t, delay, time.Duration(0))
		// cap plus jitter of at most half the cap
		assert.LessOrEqual(t, delay, testPolicy.MaxDelay+testPolicy.MaxDelay/2)
	}
}
