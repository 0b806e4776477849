package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vv_query_cache_hits_total",
		Help: "Query embeddings served from the LRU cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vv_query_cache_misses_total",
		Help: "Query embeddings computed because they were not cached.",
	})
)

type cached struct {
	Embedder
	cache *expirable.LRU[string, []float32]
}

// WithCache memoizes embeddings by exact text for ttl. It is meant for
// query embeddings, which repeat; document chunks rarely do.
func WithCache(e Embedder, size int, ttl time.Duration) Embedder {
	if size <= 0 {
		return e
	}
	return &cached{Embedder: e, cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

func (c *cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		cacheHitsTotal.Inc()
		return v, nil
	}
	cacheMissesTotal.Inc()
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}
