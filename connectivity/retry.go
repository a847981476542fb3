package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// WithTimeout applies a per-call timeout. A zero duration disables it.
func WithTimeout(defaultTimeout time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if defaultTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
				defer cancel()
			}
			return next(ctx, payload)
		}
	}
}

// WithRetry retries failed calls up to maxRetries times, doubling
// baseBackoff between attempts. Cancellation and open circuits stop the
// loop early; a nil logger makes the retries silent.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil {
					return nil, lastErr
				}
				// Retrying against an open circuit only burns the backoff budget.
				var open *ErrCircuitOpen
				if errors.As(err, &open) {
					return nil, err
				}

				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "retrying call",
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					select {
					case <-ctx.Done():
						return nil, lastErr
					case <-time.After(wait):
					}
				}
			}
			return nil, lastErr
		}
	}
}
