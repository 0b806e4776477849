package repositories

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/rohits-web03/vectorvault/internal/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("file is already being processed")
	ErrEmailTaken = errors.New("email already registered")
	ErrLastAdmin  = errors.New("at least one active admin must remain")

	ErrInvalidLimit = errors.New("search limit must be positive")
)

// FileRepository persists files and their chunk sets. Chunk sets only
// change together with the owning file's status, in one atomic step.
type FileRepository interface {
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id uuid.UUID) (*models.File, error)
	ListFiles(ctx context.Context) ([]models.File, error)

	// ClaimFile moves a file that is not in flight to Processing, drops
	// its previous chunk set and returns the updated row. A file already
	// in flight yields ErrConflict.
	ClaimFile(ctx context.Context, id uuid.UUID) (*models.File, error)
	// AdvanceStatus moves an in-flight file from one status to another.
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to models.FileStatus) error
	// FailFile records status Error with cause for an in-flight file.
	FailFile(ctx context.Context, id uuid.UUID, cause string) error
	// CommitChunks stores the full chunk set of an in-flight file and marks
	// it Stored. Fails with ErrNotFound when the file was deleted meanwhile.
	CommitChunks(ctx context.Context, id uuid.UUID, chunks []models.Chunk) (*models.File, error)
	// DeleteFile removes the file and its chunks, returning the removed row.
	DeleteFile(ctx context.Context, id uuid.UUID) (*models.File, error)
	// FailInFlight marks every in-flight file as Error; used at startup.
	FailInFlight(ctx context.Context, cause string) (int64, error)

	ListChunks(ctx context.Context, fileID uuid.UUID) ([]models.Chunk, error)
	// GetFileWithChunks reads a file and its chunk set from one snapshot,
	// so total_chunks always matches the returned chunks.
	GetFileWithChunks(ctx context.Context, id uuid.UUID) (*models.File, []models.Chunk, error)
}

// ChunkSearcher runs nearest-neighbour queries over committed chunks.
// A limit below 1 yields ErrInvalidLimit.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error)
}

// UserRepository persists accounts. Mutations that would leave no active
// admin are refused with ErrLastAdmin inside the same transaction.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	// UpdateUser loads the user, applies mutate and saves the result.
	UpdateUser(ctx context.Context, id uuid.UUID, mutate func(u *models.User) error) (*models.User, error)
	// DeleteUser removes the user after check accepts it.
	DeleteUser(ctx context.Context, id uuid.UUID, check func(u *models.User) error) (*models.User, error)
}

// Store is everything the server needs from a storage backend.
type Store interface {
	FileRepository
	ChunkSearcher
	UserRepository
	Close() error
}

// clampSimilarity maps a cosine similarity onto [0,1]. pgvector reports
// NaN for zero-norm vectors, which counts as no similarity.
func clampSimilarity(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
