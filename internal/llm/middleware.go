package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/perfsight/internal/metrics"
	"golang.org/x/time/rate"
)

// Middleware decorates a Caller with a cross-cutting concern.
type Middleware func(Caller) Caller

// Wrap applies middlewares in left-to-right order.
// Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Caller, mws ...Middleware) Caller {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, prompt, model string, temperature float64) (string, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	return f(ctx, prompt, model, temperature)
}

// Retry retries a call up to maxAttempts times with exponential backoff
// starting at baseDelay. Rate-limited attempts wait twice as long. Fatal API
// errors are not retried. A terminal failure always wraps ErrUpstream.
func Retry(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Caller) Caller {
		return CallerFunc(func(ctx context.Context, prompt, model string, temperature float64) (string, error) {
			backoff := baseDelay
			var last error
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				resp, err := next.Call(ctx, prompt, model, temperature)
				if err == nil {
					return resp, nil
				}
				err = classify(err)
				last = err
				rateLimited := errors.Is(err, ErrRateLimited)
				logger.Warn("LLM call failed",
					"attempt", attempt,
					"max_attempts", maxAttempts,
					"model", model,
					"rate_limit", rateLimited,
					"error", err)

				if errors.Is(err, ErrFatalAPI) {
					return "", fmt.Errorf("%w: %w", ErrUpstream, err)
				}
				if attempt == maxAttempts {
					break
				}

				wait := backoff
				if rateLimited {
					wait *= 2
				}
				if err := sleep(ctx, wait); err != nil {
					return "", fmt.Errorf("%w: %w", ErrUpstream, err)
				}
				backoff *= 2
			}
			return "", fmt.Errorf("%w after %d attempts: %w", ErrUpstream, maxAttempts, last)
		})
	}
}

// RateLimit throttles calls to rps requests per second with the given burst.
// If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Caller) Caller {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		return CallerFunc(func(ctx context.Context, prompt, model string, temperature float64) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
			return next.Call(ctx, prompt, model, temperature)
		})
	}
}

// Timeout bounds each individual attempt.
func Timeout(d time.Duration) Middleware {
	return func(next Caller) Caller {
		if d <= 0 {
			return next
		}
		return CallerFunc(func(ctx context.Context, prompt, model string, temperature float64) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Call(ctx, prompt, model, temperature)
		})
	}
}

// Instrument records every call in the collector under the operation name
// carried by the context (see WithOperation).
func Instrument(c *metrics.Collector) Middleware {
	return func(next Caller) Caller {
		if c == nil {
			return next
		}
		return CallerFunc(func(ctx context.Context, prompt, model string, temperature float64) (string, error) {
			start := time.Now()
			resp, err := next.Call(ctx, prompt, model, temperature)
			c.RecordCall(OperationFrom(ctx), time.Since(start), len([]rune(prompt)), len([]rune(resp)), err != nil)
			return resp, err
		})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
