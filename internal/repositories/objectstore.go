package repositories

import (
	"context"
	"io"
	"time"
)

// ObjectStore holds the raw bytes of uploaded files keyed by object key.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// Presigner is implemented by object stores that can hand out temporary
// download URLs instead of streaming bytes through the server.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}
