package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rohits-web03/vectorvault/internal/chunker"
	"github.com/rohits-web03/vectorvault/internal/embedding"
	"github.com/rohits-web03/vectorvault/internal/extract"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/repositories"
)

type fixture struct {
	store   *repositories.MemoryStore
	objects *repositories.DiskStore
	p       *Pipeline
}

func newFixture(t *testing.T, e embedding.Embedder) *fixture {
	t.Helper()
	objects, err := repositories.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	chk, err := chunker.New(300, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		e, _ = embedding.NewHash(32)
	}
	store := repositories.NewMemoryStore()
	p := New(store, objects, extract.New(), chk, e, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		MaxUploadBytes:   1 << 20,
		ProcessTimeout:   5 * time.Second,
		Workers:          2,
		EmbedConcurrency: 3,
	})
	return &fixture{store: store, objects: objects, p: p}
}

func invoiceText() string {
	var sentences []string
	for i := 0; i < 27; i++ {
		sentences = append(sentences, fmt.Sprintf("Line %d lists billed hours for consulting.", i+1))
	}
	return strings.Join(sentences, " ") // 27 sentences of 7 words
}

func (f *fixture) upload(t *testing.T, name, body string) *models.File {
	t.Helper()
	file, err := f.p.Upload(context.Background(), name, "", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return file
}

func TestUploadCreatesPendingFile(t *testing.T) {
	f := newFixture(t, nil)
	file := f.upload(t, "invoice.txt", invoiceText())

	if file.Status != models.StatusPending || file.TotalChunks != 0 {
		t.Errorf("got status %s with %d chunks, want Pending with 0", file.Status, file.TotalChunks)
	}
	if file.FileType != "txt" || file.FileSize != int64(len(invoiceText())) {
		t.Errorf("unexpected file metadata %+v", file)
	}
	data, err := f.objects.GetObject(context.Background(), file.ObjectKey)
	if err != nil || string(data) != invoiceText() {
		t.Errorf("stored bytes mismatch (err=%v)", err)
	}
	chunks, _ := f.store.ListChunks(context.Background(), file.ID)
	if len(chunks) != 0 {
		t.Errorf("upload created %d chunks", len(chunks))
	}
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.p.Upload(ctx, "report.docx", "application/msword", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("docx: got %v, want ErrUnsupportedType", err)
	}
	big := strings.Repeat("a", 1<<20+1)
	if _, err := f.p.Upload(ctx, "big.txt", "text/plain", strings.NewReader(big)); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("big: got %v, want ErrFileTooLarge", err)
	}
	files, _ := f.store.ListFiles(ctx)
	if len(files) != 0 {
		t.Errorf("rejected uploads created %d files", len(files))
	}
}

func TestDetectType(t *testing.T) {
	cases := []struct {
		name, contentType, want string
	}{
		{"a.pdf", "", "pdf"},
		{"A.PDF", "application/octet-stream", "pdf"},
		{"notes.txt", "", "txt"},
		{"blob", "application/pdf", "pdf"},
		{"blob", "text/plain; charset=utf-8", "txt"},
		{"image.png", "image/png", ""},
		{"blob", "", ""},
	}
	for _, tc := range cases {
		if got := DetectType(tc.name, tc.contentType); got != tc.want {
			t.Errorf("DetectType(%q, %q) = %q, want %q", tc.name, tc.contentType, got, tc.want)
		}
	}
}

func TestProcessStoresChunks(t *testing.T) {
	f := newFixture(t, nil)
	file := f.upload(t, "invoice.txt", invoiceText())

	got, err := f.p.Process(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != models.StatusStored || got.TotalChunks != 1 {
		t.Fatalf("got status %s with %d chunks, want Stored with 1", got.Status, got.TotalChunks)
	}
	chunks, _ := f.store.ListChunks(context.Background(), file.ID)
	if len(chunks) != 1 || chunks[0].ChunkNumber != 1 || chunks[0].TokenCount != 189 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if len(chunks[0].Embedding.Slice()) != 32 {
		t.Errorf("embedding dimension = %d", len(chunks[0].Embedding.Slice()))
	}
}

func TestProcessEmptyTextStoresZeroChunks(t *testing.T) {
	f := newFixture(t, nil)
	file := f.upload(t, "empty.txt", "  \n ")
	got, err := f.p.Process(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != models.StatusStored || got.TotalChunks != 0 {
		t.Errorf("got %s/%d, want Stored/0", got.Status, got.TotalChunks)
	}
}

func TestReprocessIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	long := strings.Repeat(invoiceText()+"\n\n", 6)
	file := f.upload(t, "long.txt", long)
	ctx := context.Background()

	if _, err := f.p.Process(ctx, file.ID); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.ListChunks(ctx, file.ID)
	if _, err := f.p.Process(ctx, file.ID); err != nil {
		t.Fatal(err)
	}
	second, _ := f.store.ListChunks(ctx, file.ID)

	if len(first) < 2 || len(first) != len(second) {
		t.Fatalf("chunk counts %d vs %d", len(first), len(second))
	}
	total := 0
	for i := range first {
		if first[i].ChunkNumber != i+1 || second[i].ChunkNumber != i+1 {
			t.Errorf("chunk numbers not contiguous at %d", i)
		}
		if first[i].Text != second[i].Text {
			t.Errorf("chunk %d text differs between runs", i+1)
		}
		if first[i].ID == second[i].ID {
			t.Errorf("chunk %d was not recreated", i+1)
		}
		total += second[i].TokenCount
	}
	if total != chunker.CountTokens(long) {
		t.Errorf("token sum = %d, want %d", total, chunker.CountTokens(long))
	}
}

func TestExtractionFailureMarksError(t *testing.T) {
	f := newFixture(t, nil)
	file := f.upload(t, "bad.txt", "bad \xff\xfe\xfd bytes")

	got, err := f.p.Process(context.Background(), file.ID)
	if !errors.Is(err, extract.ErrUnsupportedEncoding) {
		t.Fatalf("got %v, want ErrUnsupportedEncoding", err)
	}
	if got.Status != models.StatusError || got.ErrorMessage == "" || got.TotalChunks != 0 {
		t.Errorf("unexpected file state %+v", got)
	}
}

type failingEmbedder struct {
	embedding.Embedder
	mu      sync.Mutex
	calls   int
	failing bool
}

func (e *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.failing && e.calls%3 == 0
	e.mu.Unlock()
	if fail {
		return nil, &embedding.TransientError{Err: errors.New("quota exceeded")}
	}
	return e.Embedder.Embed(ctx, text)
}

func TestEmbeddingFailureIsAllOrNothing(t *testing.T) {
	hash, _ := embedding.NewHash(32)
	e := &failingEmbedder{Embedder: hash}
	f := newFixture(t, e)
	file := f.upload(t, "long.txt", strings.Repeat(invoiceText()+"\n\n", 6))
	ctx := context.Background()

	if _, err := f.p.Process(ctx, file.ID); err != nil {
		t.Fatal(err)
	}

	e.failing = true
	got, err := f.p.Process(ctx, file.ID)
	if !embedding.IsTransient(err) {
		t.Fatalf("got %v, want transient embedding error", err)
	}
	if got.Status != models.StatusError || !strings.Contains(got.ErrorMessage, "quota exceeded") {
		t.Errorf("unexpected file state %+v", got)
	}
	chunks, _ := f.store.ListChunks(ctx, file.ID)
	if len(chunks) != 0 || got.TotalChunks != 0 {
		t.Errorf("failed run left %d chunks (total_chunks=%d)", len(chunks), got.TotalChunks)
	}
	hits, _ := f.store.SearchChunks(ctx, make([]float32, 32), 10)
	if len(hits) != 0 {
		t.Errorf("search returned %d hits for an errored file", len(hits))
	}
}

// blockingEmbedder holds every call until release is closed or ctx ends.
type blockingEmbedder struct {
	embedding.Embedder
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func newBlockingEmbedder() *blockingEmbedder {
	hash, _ := embedding.NewHash(32)
	return &blockingEmbedder{Embedder: hash, started: make(chan struct{}), release: make(chan struct{})}
}

func (e *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.once.Do(func() { close(e.started) })
	select {
	case <-e.release:
		return e.Embedder.Embed(ctx, text)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitStarted(t *testing.T, e *blockingEmbedder) {
	t.Helper()
	select {
	case <-e.started:
	case <-time.After(5 * time.Second):
		t.Fatal("embedder was never called")
	}
}

func TestStartRejectsOverlappingRun(t *testing.T) {
	e := newBlockingEmbedder()
	f := newFixture(t, e)
	file := f.upload(t, "invoice.txt", invoiceText())
	ctx := context.Background()

	started, err := f.p.Start(ctx, file.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != models.StatusProcessing {
		t.Errorf("Start returned status %s", started.Status)
	}
	waitStarted(t, e)

	if _, err := f.p.Process(ctx, file.ID); !errors.Is(err, repositories.ErrConflict) {
		t.Errorf("second run: got %v, want ErrConflict", err)
	}

	close(e.release)
	if err := f.p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetFile(ctx, file.ID)
	if got.Status != models.StatusStored || got.TotalChunks != 1 {
		t.Errorf("got %s/%d after run, want Stored/1", got.Status, got.TotalChunks)
	}
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	e := newBlockingEmbedder()
	f := newFixture(t, e)
	file := f.upload(t, "invoice.txt", invoiceText())
	ctx := context.Background()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.p.Start(ctx, file.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repositories.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	close(e.release)
	_ = f.p.Shutdown(ctx)

	if wins != 1 || conflicts != callers-1 {
		t.Errorf("wins=%d conflicts=%d, want 1 and %d", wins, conflicts, callers-1)
	}
}

func TestDeleteDuringProcessingLeavesNothing(t *testing.T) {
	e := newBlockingEmbedder()
	f := newFixture(t, e)
	file := f.upload(t, "invoice.txt", invoiceText())
	ctx := context.Background()

	if _, err := f.p.Start(ctx, file.ID); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, e)

	if _, err := f.p.Delete(ctx, file.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.GetFile(ctx, file.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("GetFile after delete: %v", err)
	}
	chunks, _ := f.store.ListChunks(ctx, file.ID)
	if len(chunks) != 0 {
		t.Errorf("deleted file has %d chunks", len(chunks))
	}
	if _, err := f.objects.GetObject(ctx, file.ObjectKey); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("stored object still present: %v", err)
	}
}

func TestDeleteUnknownFile(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.p.Delete(context.Background(), uuid.New()); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRecoverMarksInFlightAsError(t *testing.T) {
	f := newFixture(t, nil)
	file := f.upload(t, "invoice.txt", invoiceText())
	ctx := context.Background()
	if _, err := f.store.ClaimFile(ctx, file.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.p.Recover(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetFile(ctx, file.ID)
	if got.Status != models.StatusError || got.ErrorMessage != InterruptedCause {
		t.Errorf("got %s (%q), want Error (%q)", got.Status, got.ErrorMessage, InterruptedCause)
	}
	if _, err := f.p.Process(ctx, file.ID); err != nil {
		t.Errorf("re-process after recovery: %v", err)
	}
}

type slowEmbedder struct {
	embedding.Embedder
	delay time.Duration
}

func (e *slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-time.After(e.delay):
		return e.Embedder.Embed(ctx, text)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestQueuedRunGetsFullTimeout(t *testing.T) {
	hash, _ := embedding.NewHash(32)
	f := newFixture(t, nil)
	chk, _ := chunker.New(300, 0)
	f.p = New(f.store, f.objects, extract.New(), chk, &slowEmbedder{Embedder: hash, delay: 300 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
			MaxUploadBytes:   1 << 20,
			ProcessTimeout:   600 * time.Millisecond,
			Workers:          1,
			EmbedConcurrency: 1,
		})
	ctx := context.Background()
	a := f.upload(t, "a.txt", "First ledger entry.")
	b := f.upload(t, "b.txt", "Second ledger entry.")

	for _, file := range []*models.File{a, b} {
		if _, err := f.p.Start(ctx, file.ID); err != nil {
			t.Fatalf("Start(%s): %v", file.Filename, err)
		}
	}
	if err := f.p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	for _, file := range []*models.File{a, b} {
		got, _ := f.store.GetFile(ctx, file.ID)
		if got.Status != models.StatusStored {
			t.Errorf("%s: got %s (%q), want Stored", file.Filename, got.Status, got.ErrorMessage)
		}
	}
}
