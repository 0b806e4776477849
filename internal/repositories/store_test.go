package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rohits-web03/vectorvault/internal/models"
)

// storeFactory returns an empty store for one subtest.
type storeFactory func(t *testing.T) Store

func runStoreTests(t *testing.T, newStore storeFactory) {
	t.Run("ClaimLifecycle", func(t *testing.T) { testClaimLifecycle(t, newStore(t)) })
	t.Run("CommitAfterDelete", func(t *testing.T) { testCommitAfterDelete(t, newStore(t)) })
	t.Run("FailFile", func(t *testing.T) { testFailFile(t, newStore(t)) })
	t.Run("FailInFlight", func(t *testing.T) { testFailInFlight(t, newStore(t)) })
	t.Run("ListFilesNewestFirst", func(t *testing.T) { testListFiles(t, newStore(t)) })
	t.Run("SearchChunks", func(t *testing.T) { testSearchChunks(t, newStore(t)) })
	t.Run("SearchZeroVectors", func(t *testing.T) { testSearchZeroVectors(t, newStore(t)) })
	t.Run("SearchRejectsBadLimit", func(t *testing.T) { testSearchBadLimit(t, newStore(t)) })
	t.Run("FileWithChunks", func(t *testing.T) { testFileWithChunks(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("LastAdmin", func(t *testing.T) { testLastAdmin(t, newStore(t)) })
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFile(t *testing.T, s Store, name string, uploaded time.Time) *models.File {
	t.Helper()
	id := uuid.New()
	f := &models.File{
		ID:          id,
		Filename:    name,
		FileType:    "txt",
		ContentType: "text/plain",
		FileSize:    42,
		ObjectKey:   "files/" + id.String() + ".txt",
		Status:      models.StatusPending,
		UploadDate:  uploaded,
	}
	if err := s.CreateFile(context.Background(), f); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	return f
}

func chunksFor(fileID uuid.UUID, vectors ...[]float32) []models.Chunk {
	chunks := make([]models.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = models.Chunk{
			ID:          uuid.New(),
			FileID:      fileID,
			ChunkNumber: i + 1,
			Text:        "chunk text",
			TokenCount:  2,
			Embedding:   pgvector.NewVector(v),
			CreatedAt:   baseTime.Add(time.Duration(i) * time.Millisecond),
		}
	}
	return chunks
}

func store(t *testing.T, s Store, f *models.File, vectors ...[]float32) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.ClaimFile(ctx, f.ID); err != nil {
		t.Fatalf("ClaimFile: %v", err)
	}
	if _, err := s.CommitChunks(ctx, f.ID, chunksFor(f.ID, vectors...)); err != nil {
		t.Fatalf("CommitChunks: %v", err)
	}
}

func testClaimLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	f := newFile(t, s, "a.txt", baseTime)

	claimed, err := s.ClaimFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("ClaimFile: %v", err)
	}
	if claimed.Status != models.StatusProcessing {
		t.Errorf("status = %s, want Processing", claimed.Status)
	}
	if _, err := s.ClaimFile(ctx, f.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second claim: err = %v, want ErrConflict", err)
	}
	if err := s.AdvanceStatus(ctx, f.ID, models.StatusPending, models.StatusEmbedded); !errors.Is(err, ErrConflict) {
		t.Errorf("advance from wrong status: err = %v, want ErrConflict", err)
	}
	if err := s.AdvanceStatus(ctx, f.ID, models.StatusProcessing, models.StatusEmbedded); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}
	if _, err := s.ClaimFile(ctx, f.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("claim while Embedded: err = %v, want ErrConflict", err)
	}

	committed, err := s.CommitChunks(ctx, f.ID, chunksFor(f.ID, []float32{1, 0, 0}, []float32{0, 1, 0}))
	if err != nil {
		t.Fatalf("CommitChunks: %v", err)
	}
	if committed.Status != models.StatusStored || committed.TotalChunks != 2 {
		t.Errorf("committed = %s/%d, want Stored/2", committed.Status, committed.TotalChunks)
	}
	chunks, err := s.ListChunks(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 || chunks[0].ChunkNumber != 1 || chunks[1].ChunkNumber != 2 {
		t.Errorf("chunks = %+v", chunks)
	}
	if _, err := s.CommitChunks(ctx, f.ID, nil); !errors.Is(err, ErrConflict) {
		t.Errorf("commit on Stored file: err = %v, want ErrConflict", err)
	}

	// re-processing starts from an empty chunk set
	if _, err := s.ClaimFile(ctx, f.ID); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if chunks, _ := s.ListChunks(ctx, f.ID); len(chunks) != 0 {
		t.Errorf("reclaim kept %d chunks", len(chunks))
	}
	got, _ := s.GetFile(ctx, f.ID)
	if got.TotalChunks != 0 || got.Status != models.StatusProcessing {
		t.Errorf("reclaimed file = %s/%d", got.Status, got.TotalChunks)
	}

	if _, err := s.ClaimFile(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("claim unknown: err = %v, want ErrNotFound", err)
	}
}

func testCommitAfterDelete(t *testing.T, s Store) {
	ctx := context.Background()
	f := newFile(t, s, "a.txt", baseTime)
	if _, err := s.ClaimFile(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	deleted, err := s.DeleteFile(ctx, f.ID)
	if err != nil || deleted.ID != f.ID {
		t.Fatalf("DeleteFile = %v, %v", deleted, err)
	}
	if _, err := s.CommitChunks(ctx, f.ID, chunksFor(f.ID, []float32{1, 0, 0})); !errors.Is(err, ErrNotFound) {
		t.Errorf("commit after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.FailFile(ctx, f.ID, "boom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("fail after delete: err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteFile(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if chunks, _ := s.ListChunks(ctx, f.ID); len(chunks) != 0 {
		t.Errorf("chunks survived delete: %d", len(chunks))
	}
}

func testFailFile(t *testing.T, s Store) {
	ctx := context.Background()
	f := newFile(t, s, "a.txt", baseTime)
	if err := s.FailFile(ctx, f.ID, "boom"); !errors.Is(err, ErrConflict) {
		t.Errorf("fail Pending file: err = %v, want ErrConflict", err)
	}
	if _, err := s.ClaimFile(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.FailFile(ctx, f.ID, "extraction failed"); err != nil {
		t.Fatalf("FailFile: %v", err)
	}
	got, _ := s.GetFile(ctx, f.ID)
	if got.Status != models.StatusError || got.ErrorMessage != "extraction failed" {
		t.Errorf("file = %s %q", got.Status, got.ErrorMessage)
	}
	// an errored file may be claimed again
	if _, err := s.ClaimFile(ctx, f.ID); err != nil {
		t.Errorf("claim after error: %v", err)
	}
	got, _ = s.GetFile(ctx, f.ID)
	if got.ErrorMessage != "" {
		t.Errorf("claim kept error message %q", got.ErrorMessage)
	}
}

func testFailInFlight(t *testing.T, s Store) {
	ctx := context.Background()
	pending := newFile(t, s, "pending.txt", baseTime)
	processing := newFile(t, s, "processing.txt", baseTime)
	embedded := newFile(t, s, "embedded.txt", baseTime)
	stored := newFile(t, s, "stored.txt", baseTime)

	if _, err := s.ClaimFile(ctx, processing.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimFile(ctx, embedded.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AdvanceStatus(ctx, embedded.ID, models.StatusProcessing, models.StatusEmbedded); err != nil {
		t.Fatal(err)
	}
	store(t, s, stored, []float32{1, 0, 0})

	n, err := s.FailInFlight(ctx, "interrupted")
	if err != nil || n != 2 {
		t.Fatalf("FailInFlight = %d, %v; want 2", n, err)
	}
	want := map[uuid.UUID]models.FileStatus{
		pending.ID:    models.StatusPending,
		processing.ID: models.StatusError,
		embedded.ID:   models.StatusError,
		stored.ID:     models.StatusStored,
	}
	for id, status := range want {
		got, _ := s.GetFile(ctx, id)
		if got.Status != status {
			t.Errorf("%s: status = %s, want %s", got.Filename, got.Status, status)
		}
	}
}

func testListFiles(t *testing.T, s Store) {
	ctx := context.Background()
	newFile(t, s, "old.txt", baseTime)
	newFile(t, s, "new.txt", baseTime.Add(time.Hour))
	newFile(t, s, "mid.txt", baseTime.Add(time.Minute))

	files, err := s.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Filename)
	}
	if len(names) != 3 || names[0] != "new.txt" || names[1] != "mid.txt" || names[2] != "old.txt" {
		t.Errorf("order = %v", names)
	}
}

func testSearchChunks(t *testing.T, s Store) {
	ctx := context.Background()

	empty, err := s.SearchChunks(ctx, []float32{1, 0, 0}, 5)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty store: %v, %v", empty, err)
	}

	a := newFile(t, s, "a.txt", baseTime)
	b := newFile(t, s, "b.txt", baseTime)
	gone := newFile(t, s, "gone.txt", baseTime)
	store(t, s, a, []float32{1, 0, 0}, []float32{-1, 0, 0})
	store(t, s, b, []float32{1, 1, 0})
	store(t, s, gone, []float32{1, 0, 0})
	if _, err := s.DeleteFile(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchChunks(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	if hits[0].FileID != a.ID || hits[0].ChunkNumber != 1 || hits[0].Filename != "a.txt" {
		t.Errorf("best hit = %+v", hits[0])
	}
	if hits[1].FileID != b.ID {
		t.Errorf("second hit = %+v", hits[1])
	}
	for i, h := range hits {
		if h.Similarity < 0 || h.Similarity > 1 {
			t.Errorf("hit %d similarity %f outside [0,1]", i, h.Similarity)
		}
		if i > 0 && h.Similarity > hits[i-1].Similarity {
			t.Errorf("hits not sorted at %d", i)
		}
		if h.FileID == gone.ID {
			t.Error("deleted file returned")
		}
	}
	if hits[2].Similarity != 0 {
		t.Errorf("opposite vector similarity = %f, want clamped 0", hits[2].Similarity)
	}

	limited, _ := s.SearchChunks(ctx, []float32{1, 0, 0}, 1)
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d hits", len(limited))
	}
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()
	u := &models.User{Email: "ada@example.com", Password: "hash", IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == uuid.Nil {
		t.Fatal("CreateUser did not assign an ID")
	}
	if err := s.CreateUser(ctx, &models.User{Email: "ada@example.com", Password: "hash"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: err = %v, want ErrEmailTaken", err)
	}
	if err := s.CreateUser(ctx, &models.User{Email: "bob@example.com", Password: "hash", IsActive: true}); err != nil {
		t.Fatalf("second user: %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "ADA@example.com")
	if err != nil || got.ID != u.ID {
		t.Errorf("GetUserByEmail = %v, %v", got, err)
	}
	if _, err := s.GetUserByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
	if n, _ := s.CountUsers(ctx); n != 2 {
		t.Errorf("CountUsers = %d, want 2", n)
	}

	if _, err := s.UpdateUser(ctx, u.ID, func(u *models.User) error {
		u.Email = "bob@example.com"
		return nil
	}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("rename onto taken email: err = %v, want ErrEmailTaken", err)
	}
	sentinel := errors.New("rejected")
	if _, err := s.UpdateUser(ctx, u.ID, func(*models.User) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("mutate error not propagated: %v", err)
	}
	if _, err := s.DeleteUser(ctx, u.ID, func(*models.User) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("check error not propagated: %v", err)
	}
	if _, err := s.DeleteUser(ctx, u.ID, func(*models.User) error { return nil }); err != nil {
		t.Errorf("DeleteUser: %v", err)
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 1 || users[0].Email != "bob@example.com" {
		t.Errorf("users = %+v", users)
	}
}

func testLastAdmin(t *testing.T, s Store) {
	ctx := context.Background()
	admin := &models.User{Email: "root@example.com", Password: "hash", IsActive: true, IsAdmin: true}
	if err := s.CreateUser(ctx, admin); err != nil {
		t.Fatal(err)
	}
	accept := func(*models.User) error { return nil }
	demote := func(u *models.User) error {
		u.IsAdmin = false
		return nil
	}
	deactivate := func(u *models.User) error {
		u.IsActive = false
		return nil
	}

	if _, err := s.UpdateUser(ctx, admin.ID, demote); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("demote last admin: err = %v, want ErrLastAdmin", err)
	}
	if _, err := s.UpdateUser(ctx, admin.ID, deactivate); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("deactivate last admin: err = %v, want ErrLastAdmin", err)
	}
	if _, err := s.DeleteUser(ctx, admin.ID, accept); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("delete last admin: err = %v, want ErrLastAdmin", err)
	}

	second := &models.User{Email: "ops@example.com", Password: "hash", IsActive: true, IsAdmin: true}
	if err := s.CreateUser(ctx, second); err != nil {
		t.Fatal(err)
	}
	updated, err := s.UpdateUser(ctx, admin.ID, demote)
	if err != nil || updated.IsAdmin {
		t.Fatalf("demote with another admin present = %v, %v", updated, err)
	}
	if _, err := s.DeleteUser(ctx, second.ID, accept); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("delete remaining admin: err = %v, want ErrLastAdmin", err)
	}
}

// Zero-norm vectors have no defined cosine; they must rank as similarity 0
// and still encode as JSON.
func testSearchZeroVectors(t *testing.T, s Store) {
	ctx := context.Background()
	f := newFile(t, s, "dashes.txt", baseTime)
	store(t, s, f, []float32{0, 0, 0}, []float32{1, 0, 0})

	for _, query := range [][]float32{{1, 0, 0}, {0, 0, 0}} {
		hits, err := s.SearchChunks(ctx, query, 10)
		if err != nil {
			t.Fatalf("query %v: %v", query, err)
		}
		if len(hits) != 2 {
			t.Fatalf("query %v: %d hits, want 2", query, len(hits))
		}
		for _, h := range hits {
			if math.IsNaN(h.Similarity) || h.Similarity < 0 || h.Similarity > 1 {
				t.Errorf("query %v chunk %d: similarity %f", query, h.ChunkNumber, h.Similarity)
			}
		}
		if _, err := json.Marshal(hits); err != nil {
			t.Errorf("query %v: hits do not encode: %v", query, err)
		}
	}

	hits, _ := s.SearchChunks(ctx, []float32{1, 0, 0}, 10)
	if hits[0].ChunkNumber != 2 || hits[0].Similarity != 1 || hits[1].Similarity != 0 {
		t.Errorf("ranking with zero vector = %+v", hits)
	}
}

func testSearchBadLimit(t *testing.T, s Store) {
	f := newFile(t, s, "a.txt", baseTime)
	store(t, s, f, []float32{1, 0, 0})
	for _, limit := range []int{0, -1} {
		if _, err := s.SearchChunks(context.Background(), []float32{1, 0, 0}, limit); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("limit %d: err = %v, want ErrInvalidLimit", limit, err)
		}
	}
}

func testFileWithChunks(t *testing.T, s Store) {
	ctx := context.Background()
	f := newFile(t, s, "a.txt", baseTime)

	file, chunks, err := s.GetFileWithChunks(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFileWithChunks: %v", err)
	}
	if file.Status != models.StatusPending || chunks == nil || len(chunks) != 0 {
		t.Errorf("pending file = %s with %v", file.Status, chunks)
	}

	store(t, s, f, []float32{1, 0, 0}, []float32{0, 1, 0})
	file, chunks, err = s.GetFileWithChunks(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if file.TotalChunks != len(chunks) || len(chunks) != 2 || chunks[0].ChunkNumber != 1 {
		t.Errorf("total_chunks = %d with %d chunks", file.TotalChunks, len(chunks))
	}

	if _, _, err := s.GetFileWithChunks(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown file: err = %v, want ErrNotFound", err)
	}
}
