package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("retries conflicts until success", func(t *testing.T) {
		calls := 0
		err := RetryTransaction(ctx, 5, func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("deadlock: %w", ErrTransactionConflict)
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := RetryTransaction(ctx, 2, func() error {
			calls++
			return ErrTransactionConflict
		})
		assert.ErrorIs(t, err, ErrTransactionConflict)
		assert.Equal(t, 2, calls)
	})

	t.Run("other errors are returned at once", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := RetryTransaction(ctx, 5, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryTransaction(cctx, 5, func() error { return ErrTransactionConflict })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
