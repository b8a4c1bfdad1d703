package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errRetryable wraps failures that are worth another attempt (rate limits,
// transient server errors). Everything else fails the call immediately.
var errRetryable = errors.New("retryable")

func retryableErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errRetryable, fmt.Sprintf(format, args...))
}

// retryPolicy is the single retry policy shared by every outbound caller.
// The delay doubles after each attempt: initial, 2x, 4x, ...
type retryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{MaxRetries: 2, InitialDelay: time.Second}
}

// do runs fn up to 1+MaxRetries times. Only errors wrapping errRetryable are
// retried; the context cancels the inter-attempt wait.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	delay := p.InitialDelay
	var err error

	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, errRetryable) {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
