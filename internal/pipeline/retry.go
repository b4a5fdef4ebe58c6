package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/accioltd/mdchunk/internal/enrich"
)

// RetryConfig bounds per-item retries of transient enrichment failures.
type RetryConfig struct {
	MaxAttempts int           // Total calls per item, including the first
	BaseDelay   time.Duration // Wait before the second attempt, doubled after
	MaxJitter   time.Duration // Upper bound of the random addition; capped at BaseDelay
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   800 * time.Millisecond,
		MaxJitter:   400 * time.Millisecond,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	// Jitter above the base delay could make a later wait shorter than an
	// earlier one.
	if c.MaxJitter > c.BaseDelay {
		c.MaxJitter = c.BaseDelay
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	return c
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *enrich.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns the wait after failed attempt n (1-indexed):
// base*2^(n-1) plus the given jitter.
func Backoff(cfg RetryConfig, attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return cfg.BaseDelay*time.Duration(1<<uint(attempt-1)) + jitter
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
