package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a deterministic, offline embedder based on feature hashing of
// lower-cased words and word bigrams. Vectors are L2-normalized.
type Hash struct {
	dim int
}

func NewHash(dim int) (*Hash, error) {
	if dim <= 0 {
		return nil, errors.New("hash embedder: dimension must be > 0")
	}
	return &Hash{dim: dim}, nil
}

func (h *Hash) Name() string   { return "hash" }
func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hash) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	// one hash bit picks the sign so collisions tend to cancel
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
