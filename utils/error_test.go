package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDBErrorContention(t *testing.T) {
	for _, number := range []uint16{1205, 1213} {
		err := ClassifyDBError("lock product row", &mysql.MySQLError{Number: number, Message: "try restarting transaction"})

		var ce *ContentionError
		require.ErrorAs(t, err, &ce, "mysql %d should classify as contention", number)
		assert.True(t, IsContention(err))
		assert.True(t, IsRetryable(err))
	}
}

func TestClassifyDBErrorPersistence(t *testing.T) {
	cause := errors.New("connection reset")
	err := ClassifyDBError("create sale", cause)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "create sale", pe.Op)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRetryable(err))
}

func TestClassifyDBErrorSurvivesWrapping(t *testing.T) {
	inner := ClassifyDBError("reserve product stock", &mysql.MySQLError{Number: 1213})
	wrapped := fmt.Errorf("attempt 2: %w", inner)

	assert.True(t, IsContention(wrapped))
	assert.True(t, IsRetryable(wrapped))
}

func TestClassifyDBErrorNil(t *testing.T) {
	assert.NoError(t, ClassifyDBError("noop", nil))
}

func TestIsDuplicateEntry(t *testing.T) {
	assert.True(t, IsDuplicateEntry(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsDuplicateEntry(&mysql.MySQLError{Number: 1205}))
	assert.False(t, IsDuplicateEntry(errors.New("duplicate-ish")))
}

func TestBusinessErrorsAreNotRetryable(t *testing.T) {
	assert.False(t, IsRetryable(&ValidationError{Field: "qty", Reason: "must be greater than zero"}))
	assert.False(t, IsRetryable(&InsufficientStockError{ProductId: 1}))
	assert.False(t, IsRetryable(ErrSaleNotFound))
	assert.False(t, IsRetryable(ErrAlreadyReversed))
}

func TestExhaustedRetriesUnwrapsLast(t *testing.T) {
	last := &ContentionError{Err: &mysql.MySQLError{Number: 1205}}
	err := &ExhaustedRetriesError{Operation: "CreateSale", Attempts: 4, Last: last}

	var ce *ContentionError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "4 attempts")
}
