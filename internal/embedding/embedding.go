// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rohits-web03/vectorvault/internal/config"
)

// ErrInvalidInput is returned when the provider rejects the request itself.
// Such errors are never retried.
var ErrInvalidInput = errors.New("invalid embedding input")

// Embedder produces a vector of exactly Dimension() elements per text.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TransientError marks a failure worth retrying, like a timeout, a 429 or a 5xx.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// New builds the embedder selected by cfg.Type, wrapped with retries.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Type {
	case "", "hash":
		e, err = NewHash(cfg.Dimension)
	case "ollama":
		e, err = NewOllama(cfg)
	case "openai":
		e, err = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries > 0 {
		e = WithRetry(e, cfg.MaxRetries, defaultRetryBase)
	}
	return e, nil
}

func checkDimension(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: embedding has %d dimensions, want %d", name, got, want)
	}
	return nil
}
