package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder is a deterministic bag-of-words feature hasher. It needs no
// network and always produces the same vector for the same text, which keeps
// ingestion idempotent when running without an embedding service.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates an embedder with the given vector size.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &LocalEmbedder{dims: dims}
}

// Embed hashes each lowercased term into a bucket and L2-normalizes the
// result. Satisfies EmbedFunc.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dims)
	for _, term := range strings.Fields(strings.ToLower(text)) {
		term = strings.Trim(term, ".,;:()[]|%")
		if term == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(term))
		vec[int(h.Sum32())%e.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}
