package cloud

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryableFunc decides whether an error is transient and warrants a retry.
type RetryableFunc func(err error) bool

// ExecuteAction wraps a function with retry logic, including exponential backoff,
// jitter, and context timeouts.
//
// opName is used for logging and debugging purposes.
// operation is the function to execute; it must accept a context to support cancellation.
// A zero OperationTimeout leaves the caller's deadline in charge.
func ExecuteAction(ctx context.Context, cfg RetryConfig, isRetryable RetryableFunc, opName string, operation func(ctx context.Context) error) error {
	if cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.OperationTimeout)
		defer cancel()
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		// 1. Stop immediately if the context is cancelled or timed out.
		if ctx.Err() != nil {
			return fmt.Errorf("%s timed out before attempt %d: %w", opName, attempt+1, ctx.Err())
		}

		// 2. Execute the operation
		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}

		// 3. Permanent error, fail fast.
		if isRetryable == nil || !isRetryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxRetries {
			break
		}

		cfg.LoggerOrDefault().Warn("Transient error detected, scheduling retry",
			"operation", opName,
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"error", lastErr)

		// 4. Backoff: BaseDelay * 2^attempt plus up to 50% jitter, capped at MaxDelay.
		sleepDuration := backoff(cfg, attempt)

		// 5. Wait with Context awareness
		select {
		case <-time.After(sleepDuration):
			continue
		case <-ctx.Done():
			return fmt.Errorf("%s context cancelled during backoff: %w", opName, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d retries: %w", opName, cfg.MaxRetries, lastErr)
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	base := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))

	var jitter time.Duration
	if half := int64(base) / 2; half > 0 {
		jitter = time.Duration(rand.Int63n(half))
	}
	sleep := time.Duration(base) + jitter

	if cfg.MaxDelay > 0 {
		sleep = min(sleep, cfg.MaxDelay)
	}
	return sleep
}
