package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/rohits-web03/vectorvault/internal/embedding"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/repositories"
)

func seed(t *testing.T, store *repositories.MemoryStore, e embedding.Embedder, name string, texts ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	file := &models.File{Filename: name, FileType: "txt", Status: models.StatusPending}
	if err := store.CreateFile(ctx, file); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClaimFile(ctx, file.ID); err != nil {
		t.Fatal(err)
	}
	var chunks []models.Chunk
	for i, text := range texts {
		v, _ := e.Embed(ctx, text)
		chunks = append(chunks, models.Chunk{
			ID:          uuid.New(),
			FileID:      file.ID,
			ChunkNumber: i + 1,
			Text:        text,
			TokenCount:  len(text),
			Embedding:   pgvector.NewVector(v),
			CreatedAt:   time.Now(),
		})
	}
	if _, err := store.CommitChunks(ctx, file.ID, chunks); err != nil {
		t.Fatal(err)
	}
	return file.ID
}

func newService(t *testing.T) (*Service, *repositories.MemoryStore, embedding.Embedder) {
	t.Helper()
	e, _ := embedding.NewHash(4096)
	store := repositories.NewMemoryStore()
	return NewService(store, e, 5, slog.New(slog.NewTextHandler(io.Discard, nil))), store, e
}

func TestSearchRanksBySimilarity(t *testing.T) {
	svc, store, e := newService(t)
	seed(t, store, e, "finance.txt",
		"Depreciation spreads the cost of an asset over its useful life.",
		"The office kitchen was cleaned on Friday.",
		"Straight-line depreciation of the asset is recorded yearly.",
	)
	seed(t, store, e, "misc.txt", "Weather was sunny all week.", "Team lunch is on Tuesday.")

	res, err := svc.Search(context.Background(), "depreciation", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Query != "depreciation" {
		t.Errorf("query = %q", res.Query)
	}
	if len(res.Chunks) != 5 {
		t.Fatalf("got %d hits, want 5 (clamped to max)", len(res.Chunks))
	}
	for i, hit := range res.Chunks {
		if hit.Similarity < 0 || hit.Similarity > 1 {
			t.Errorf("hit %d similarity %f outside [0,1]", i, hit.Similarity)
		}
		if i > 0 && hit.Similarity > res.Chunks[i-1].Similarity {
			t.Errorf("hits not sorted at %d", i)
		}
	}
	if res.Chunks[0].Filename != "finance.txt" || res.Chunks[0].Similarity == 0 {
		t.Errorf("top hit = %+v, want a finance chunk", res.Chunks[0])
	}
}

func TestSearchLimit(t *testing.T) {
	svc, store, e := newService(t)
	seed(t, store, e, "a.txt", "one", "two", "three")

	res, err := svc.Search(context.Background(), "one", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 2 {
		t.Errorf("got %d hits, want 2", len(res.Chunks))
	}
}

func TestSearchDeletedFileNeverReturned(t *testing.T) {
	svc, store, e := newService(t)
	id := seed(t, store, e, "gone.txt", "depreciation schedule")
	if _, err := store.DeleteFile(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Search(context.Background(), "depreciation", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks == nil || len(res.Chunks) != 0 {
		t.Errorf("got %v, want empty non-nil slice", res.Chunks)
	}
}

func TestSearchValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Search(ctx, "   ", 10); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query: got %v", err)
	}
	for _, limit := range []int{0, -3} {
		if _, err := svc.Search(ctx, "x", limit); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("limit %d: got %v", limit, err)
		}
	}
}

func TestSearchRejectsQueryWithoutTerms(t *testing.T) {
	svc, store, e := newService(t)
	seed(t, store, e, "rules.txt", "-----", "Depreciation schedule.")

	for _, q := range []string{"???", "--- !!"} {
		if _, err := svc.Search(context.Background(), q, 10); !errors.Is(err, ErrNoSearchableTerms) {
			t.Errorf("query %q: got %v, want ErrNoSearchableTerms", q, err)
		}
	}

	res, err := svc.Search(context.Background(), "depreciation", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, hit := range res.Chunks {
		if math.IsNaN(hit.Similarity) || hit.Similarity < 0 || hit.Similarity > 1 {
			t.Errorf("chunk %q similarity %f outside [0,1]", hit.Text, hit.Similarity)
		}
	}
}
