// Package search answers natural-language queries against stored chunks.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rohits-web03/vectorvault/internal/embedding"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/repositories"
)

const DefaultLimit = 10

var (
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrInvalidLimit = errors.New("limit must be a positive integer")
	// ErrNoSearchableTerms is returned when the query embeds to the zero
	// vector, for example punctuation only.
	ErrNoSearchableTerms = errors.New("query has no searchable terms")
)

var (
	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vv_search_requests_total",
		Help: "Semantic search requests served.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vv_search_duration_seconds",
		Help:    "Latency of semantic search including the query embedding.",
		Buckets: prometheus.DefBuckets,
	})
)

type Result struct {
	Query  string             `json:"query"`
	Chunks []models.SearchHit `json:"chunks"`
}

type Service struct {
	store    repositories.ChunkSearcher
	embedder embedding.Embedder
	maxLimit int
	logger   *slog.Logger
}

func NewService(store repositories.ChunkSearcher, embedder embedding.Embedder, maxLimit int, logger *slog.Logger) *Service {
	return &Service{store: store, embedder: embedder, maxLimit: maxLimit, logger: logger}
}

// Search embeds query and returns at most limit chunks ranked by
// descending similarity. A limit above the configured maximum is clamped.
func (s *Service) Search(ctx context.Context, query string, limit int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		limit = s.maxLimit
	}

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if zeroNorm(vec) {
		return nil, ErrNoSearchableTerms
	}
	hits, err := s.store.SearchChunks(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	searchTotal.Inc()
	searchDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("search served", "limit", limit, "hits", len(hits), "duration", time.Since(start))
	return &Result{Query: query, Chunks: hits}, nil
}

func zeroNorm(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
