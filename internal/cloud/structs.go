package cloud

import (
	"log/slog"
	"time"
)

// RetryConfig defines the parameters for the exponential backoff and retry mechanism.
type RetryConfig struct {
	// MaxRetries is the maximum number of additional attempts after the initial failure.
	// For example, if MaxRetries is 3, the operation runs at most 4 times (1 initial + 3 retries).
	MaxRetries int

	// BaseDelay is the initial wait time before the first retry.
	// This duration increases exponentially with each attempt (BaseDelay * 2^attempt).
	BaseDelay time.Duration

	// MaxDelay caps the sleep duration between retries.
	MaxDelay time.Duration

	// OperationTimeout is the total time limit for the entire operation, including all retries.
	OperationTimeout time.Duration

	// Logger receives retry warnings and provider debug logs. Nil means slog.Default().
	Logger *slog.Logger
}

// LoggerOrDefault returns Logger, falling back to the process default.
func (c RetryConfig) LoggerOrDefault() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// DefaultRetryConfig is used by the long running workflows.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       3,
		BaseDelay:        2 * time.Second,
		MaxDelay:         10 * time.Second,
		OperationTimeout: 30 * time.Second,
	}
}
