// Package pipeline drives uploaded files through extraction, chunking,
// embedding and storage. File.Status is only ever changed from here.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rohits-web03/vectorvault/internal/chunker"
	"github.com/rohits-web03/vectorvault/internal/embedding"
	"github.com/rohits-web03/vectorvault/internal/extract"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/repositories"
)

var (
	ErrUnsupportedType = errors.New("only PDF and TXT files are supported")
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
)

// InterruptedCause is recorded on files whose run did not finish, either
// because the process stopped or because it is shutting down.
const InterruptedCause = "processing interrupted"

type Options struct {
	MaxUploadBytes   int64
	ProcessTimeout   time.Duration
	Workers          int
	EmbedConcurrency int
}

type Pipeline struct {
	files     repositories.FileRepository
	objects   repositories.ObjectStore
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	logger    *slog.Logger
	opts      Options
	now       func() time.Time

	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	mu   sync.Mutex
	runs map[uuid.UUID]*run
}

// run is a background processing run that Delete or Shutdown can cancel.
type run struct {
	cancel context.CancelFunc
}

func New(
	files repositories.FileRepository,
	objects repositories.ObjectStore,
	extractor extract.Extractor,
	chk *chunker.Chunker,
	embedder embedding.Embedder,
	logger *slog.Logger,
	opts Options,
) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	return &Pipeline{
		files:     files,
		objects:   objects,
		extractor: extractor,
		chunker:   chk,
		embedder:  embedder,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		runs:      make(map[uuid.UUID]*run),
	}
}

// DetectType maps a filename extension, or failing that a MIME type, to
// "pdf" or "txt". It returns "" for anything else.
func DetectType(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".txt":
		return "txt"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "application/pdf":
		return "pdf"
	case "text/plain":
		return "txt"
	}
	return ""
}

// Upload stores the raw bytes and creates a Pending file. Nothing is
// extracted or chunked until Process or Start is called.
func (p *Pipeline) Upload(ctx context.Context, filename, contentType string, body io.Reader) (*models.File, error) {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" {
		return nil, fmt.Errorf("%w: missing filename", ErrUnsupportedType)
	}
	fileType := DetectType(name, contentType)
	if fileType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}

	data, err := io.ReadAll(io.LimitReader(body, p.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > p.opts.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	if contentType == "" {
		contentType = map[string]string{"pdf": "application/pdf", "txt": "text/plain"}[fileType]
	}
	id := uuid.New()
	file := &models.File{
		ID:          id,
		Filename:    name,
		FileType:    fileType,
		ContentType: contentType,
		FileSize:    int64(len(data)),
		ObjectKey:   "files/" + id.String() + "." + fileType,
		Status:      models.StatusPending,
	}
	if err := p.objects.PutObject(ctx, file.ObjectKey, bytes.NewReader(data), file.FileSize, contentType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := p.files.CreateFile(ctx, file); err != nil {
		if derr := p.objects.DeleteObject(context.WithoutCancel(ctx), file.ObjectKey); derr != nil {
			p.logger.Warn("failed to remove orphaned object", "key", file.ObjectKey, "error", derr)
		}
		return nil, fmt.Errorf("create file: %w", err)
	}
	p.logger.Info("file uploaded", "file_id", file.ID, "filename", file.Filename, "size", file.FileSize, "status", file.Status)
	return file, nil
}

// Process claims the file and runs the whole pipeline before returning.
// On a pipeline failure the returned file is in status Error and err
// carries the cause.
func (p *Pipeline) Process(ctx context.Context, id uuid.UUID) (*models.File, error) {
	file, err := p.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ProcessTimeout)
		defer cancel()
	}
	runErr := p.execute(ctx, file)
	current, err := p.files.GetFile(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return current, runErr
}

// Start claims the file synchronously, so a conflicting run is reported to
// the caller, and processes it on a bounded background worker. It returns
// the file in status Processing.
func (p *Pipeline) Start(ctx context.Context, id uuid.UUID) (*models.File, error) {
	file, err := p.claim(ctx, id)
	if err != nil {
		return nil, err
	}

	// delete and shutdown cancel queued and running work alike
	queueCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}
	p.mu.Lock()
	p.runs[id] = r
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.forget(id, r)
		defer cancel()

		if err := p.sem.Acquire(queueCtx, 1); err != nil {
			p.fail(queueCtx, file, err)
			return
		}
		defer p.sem.Release(1)

		// the processing budget starts once a worker slot is held
		runCtx := queueCtx
		if p.opts.ProcessTimeout > 0 {
			var stop context.CancelFunc
			runCtx, stop = context.WithTimeout(queueCtx, p.opts.ProcessTimeout)
			defer stop()
		}
		_ = p.execute(runCtx, file)
	}()
	return file, nil
}

func (p *Pipeline) forget(id uuid.UUID, r *run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runs[id] == r {
		delete(p.runs, id)
	}
}

func (p *Pipeline) cancelRun(id uuid.UUID) {
	p.mu.Lock()
	r := p.runs[id]
	p.mu.Unlock()
	if r != nil {
		r.cancel()
	}
}

func (p *Pipeline) claim(ctx context.Context, id uuid.UUID) (*models.File, error) {
	file, err := p.files.ClaimFile(ctx, id)
	if err != nil {
		return nil, err
	}
	p.logger.Info("file status changed", "file_id", file.ID, "filename", file.Filename, "status", file.Status)
	return file, nil
}

// execute runs extraction through commit for a claimed file. Every failure
// is recorded on the file before it is returned.
func (p *Pipeline) execute(ctx context.Context, file *models.File) error {
	start := p.now()
	defer func() { processDuration.Observe(time.Since(start).Seconds()) }()

	data, err := p.objects.GetObject(ctx, file.ObjectKey)
	if err != nil {
		return p.fail(ctx, file, fmt.Errorf("read stored file: %w", err))
	}
	text, err := p.extractor.Extract(ctx, file.FileType, data)
	if err != nil {
		return p.fail(ctx, file, fmt.Errorf("extraction failed: %w", err))
	}

	pieces := p.chunker.Split(text)
	vectors, err := p.embedAll(ctx, pieces)
	if err != nil {
		return p.fail(ctx, file, fmt.Errorf("embedding failed: %w", err))
	}
	if err := p.files.AdvanceStatus(ctx, file.ID, models.StatusProcessing, models.StatusEmbedded); err != nil {
		return p.fail(ctx, file, err)
	}
	p.logger.Info("file status changed", "file_id", file.ID, "filename", file.Filename, "status", models.StatusEmbedded, "chunks", len(pieces))

	now := p.now()
	chunks := make([]models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.Chunk{
			ID:          uuid.New(),
			FileID:      file.ID,
			ChunkNumber: piece.Number,
			Text:        piece.Text,
			TokenCount:  piece.TokenCount,
			Embedding:   pgvector.NewVector(vectors[i]),
			CreatedAt:   now,
		}
	}
	stored, err := p.files.CommitChunks(ctx, file.ID, chunks)
	if err != nil {
		return p.fail(ctx, file, fmt.Errorf("store chunks: %w", err))
	}

	filesProcessedTotal.WithLabelValues("stored").Inc()
	chunksStoredTotal.Add(float64(len(chunks)))
	p.logger.Info("file status changed",
		"file_id", stored.ID,
		"filename", stored.Filename,
		"status", stored.Status,
		"total_chunks", stored.TotalChunks,
		"duration", time.Since(start),
	)
	return nil
}

// embedAll embeds every piece with bounded concurrency. The first failure
// cancels the remaining calls and no vectors are returned.
func (p *Pipeline) embedAll(ctx context.Context, pieces []chunker.Piece) ([][]float32, error) {
	vectors := make([][]float32, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedConcurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := p.embedder.Embed(gctx, piece.Text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", piece.Number, err)
			}
			if len(v) != p.embedder.Dimension() {
				return fmt.Errorf("chunk %d: embedding has %d dimensions, want %d", piece.Number, len(v), p.embedder.Dimension())
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// fail records err as the file's Error cause. A file deleted in the
// meantime is left alone.
func (p *Pipeline) fail(ctx context.Context, file *models.File, err error) error {
	cause := failureCause(ctx, err)
	ferr := p.files.FailFile(context.WithoutCancel(ctx), file.ID, cause)
	switch {
	case errors.Is(ferr, repositories.ErrNotFound):
		filesProcessedTotal.WithLabelValues("deleted").Inc()
		p.logger.Info("processing abandoned, file was deleted", "file_id", file.ID, "filename", file.Filename)
		return fmt.Errorf("%w: %v", repositories.ErrNotFound, err)
	case ferr != nil:
		p.logger.Error("failed to record processing error", "file_id", file.ID, "error", ferr, "cause", cause)
	default:
		p.logger.Warn("file status changed", "file_id", file.ID, "filename", file.Filename, "status", models.StatusError, "cause", cause)
	}
	filesProcessedTotal.WithLabelValues("error").Inc()
	return err
}

func failureCause(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "processing timed out"
	case errors.Is(ctx.Err(), context.Canceled):
		return InterruptedCause
	}
	return err.Error()
}

// Delete cancels any in-flight run for the file, then removes the file,
// its chunks and its stored bytes.
func (p *Pipeline) Delete(ctx context.Context, id uuid.UUID) (*models.File, error) {
	p.cancelRun(id)
	file, err := p.files.DeleteFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.objects.DeleteObject(ctx, file.ObjectKey); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		p.logger.Warn("failed to delete stored object", "file_id", id, "key", file.ObjectKey, "error", err)
	}
	p.logger.Info("file deleted", "file_id", id, "filename", file.Filename)
	return file, nil
}

// Recover marks files left in flight by a previous process as Error.
func (p *Pipeline) Recover(ctx context.Context) error {
	n, err := p.files.FailInFlight(ctx, InterruptedCause)
	if err != nil {
		return fmt.Errorf("recover in-flight files: %w", err)
	}
	if n > 0 {
		p.logger.Warn("marked interrupted files as Error", "count", n)
	}
	return nil
}

// Shutdown waits for background runs. When ctx expires first, the
// remaining runs are cancelled and recorded as interrupted.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	for _, r := range p.runs {
		r.cancel()
	}
	p.mu.Unlock()
	<-done
	return ctx.Err()
}
