package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paraScope/internal/chain"
)

// withRetry runs the transport call fn until it succeeds, doubling the delay
// after each failure. Cancellation and ErrRangeLost end the loop at once and
// are returned as they are. Once the retries are spent the last error comes
// back wrapped in chain.ErrTransportFatal under the call name.
func withRetry(ctx context.Context, logger *zap.Logger, what string, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries = max(maxRetries, 0)
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, chain.ErrRangeLost):
			return err
		case attempt >= maxRetries:
			return fmt.Errorf("%s: %w: %w", what, chain.ErrTransportFatal, err)
		}
		logger.Warn("transport call failed",
			zap.String("call", what),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
