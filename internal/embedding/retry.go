package embedding

import (
	"context"
	"errors"
	"time"
)

const (
	defaultRetryBase = 200 * time.Millisecond
	maxRetryDelay    = 5 * time.Second
)

type retrying struct {
	Embedder
	maxRetries int
	base       time.Duration
}

// WithRetry retries transient failures of e up to maxRetries times with
// capped exponential backoff. A server-provided Retry-After wins over the
// computed delay.
func WithRetry(e Embedder, maxRetries int, base time.Duration) Embedder {
	return &retrying{Embedder: e, maxRetries: maxRetries, base: base}
}

func (r *retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		v, err := r.Embedder.Embed(ctx, text)
		if err == nil || !IsTransient(err) || attempt >= r.maxRetries {
			return v, err
		}

		delay := retryDelay(r.base, attempt)
		var t *TransientError
		if errors.As(err, &t) && t.RetryAfter > 0 {
			delay = min(t.RetryAfter, maxRetryDelay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base << attempt
	if d <= 0 || d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
