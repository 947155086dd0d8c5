package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	// Arrange
	calls := 0

	// Act
	err := Retry(context.Background(), 3, time.Millisecond, func(attempt int) error {
		calls++
		return nil
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoverySecondAttempt(t *testing.T) {
	// Arrange
	calls := 0

	// Act
	err := Retry(context.Background(), 2, time.Millisecond, func(attempt int) error {
		calls++
		if attempt == 1 {
			return errors.New("transient")
		}
		return nil
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	// Arrange
	lastErr := errors.New("still failing")
	calls := 0

	// Act
	err := Retry(context.Background(), 2, time.Millisecond, func(attempt int) error {
		calls++
		return lastErr
	})

	// Assert
	assert.Equal(t, lastErr, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_CancelledDuringDelay(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	// Act
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, 3, time.Hour, func(attempt int) error {
		calls++
		return errors.New("transient")
	})

	// Assert
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, calls)
}
