package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Config holds the configuration for retry logic
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	// Jitter shortens each wait by a random fraction up to this value, in [0, 1].
	Jitter float64
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
		Jitter:          0.2,
	}
}

// ErrorChecker reports whether err is transient and worth another attempt.
type ErrorChecker func(err error) bool

// Options configures retry behavior
type Options struct {
	Config       Config
	ErrorChecker ErrorChecker
	Name         string
}

// delay computes the wait before the given retry using exponential backoff with jitter
func (c Config) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if j := min(max(c.Jitter, 0), 1); j > 0 {
		d -= time.Duration(float64(d) * j * rand.Float64())
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, or runs out of attempts.
// The last error is returned when every attempt failed.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= opts.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := opts.Config.delay(attempt - 1)
			slog.DebugContext(ctx, "Retrying call",
				"name", opts.Name,
				"attempt", attempt+1,
				"max_attempts", opts.Config.MaxRetries+1,
				"delay", wait)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				slog.InfoContext(ctx, "Call succeeded after retry", "name", opts.Name, "attempt", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if opts.ErrorChecker == nil || !opts.ErrorChecker(err) {
			return zero, err
		}
		slog.WarnContext(ctx, "Transient error",
			"name", opts.Name,
			"attempt", attempt+1,
			"max_attempts", opts.Config.MaxRetries+1,
			"error", err)
	}

	return zero, lastErr
}
