package docstore

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxAttempts bounds RunTransaction retries on ErrTransactionConflict.
const DefaultMaxAttempts = 5

const baseRetryDelay = 10 * time.Millisecond

// RetryTransaction calls attempt until it succeeds, fails with anything other than
// ErrTransactionConflict, or maxAttempts is reached.
func RetryTransaction(ctx context.Context, maxAttempts int, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var err error
	for i := 0; i < maxAttempts; i++ {
		err = attempt()
		if err == nil || !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		if i == maxAttempts-1 {
			break
		}
		delay := baseRetryDelay * time.Duration(1<<i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
