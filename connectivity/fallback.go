package connectivity

import (
	"context"
	"log/slog"
)

// WithFallback retries a failed remote call against a local handler, so a
// route can degrade to in-process behaviour when its remote endpoint is
// down. A nil local handler disables the middleware. Cancellation is not
// retried locally; it means the caller gave up.
func WithFallback(local Handler, service string, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil {
				return resp, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}

			if logger != nil {
				logger.WarnContext(ctx, "remote failed, falling back to local",
					"service", service,
					"remote_error", err)
			}
			return local(ctx, payload)
		}
	}
}
