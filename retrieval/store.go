// Package retrieval stores embedded chunks and serves similarity queries
// behind a single gateway with metadata filtering and a similarity floor.
package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/finsightai/finsight/types"
)

// StoredChunk pairs a chunk with its embedding vector.
type StoredChunk struct {
	Chunk     types.Chunk
	Embedding []float64
}

// SearchHit is one similarity match.
type SearchHit struct {
	Chunk types.Chunk
	Score float64
}

// StoreFilter is the subset of retrieval filters a store can push down to
// its index. Range filters over fiscal periods stay in the gateway.
type StoreFilter struct {
	DocumentID string
	Statement  types.StatementType
	Kind       types.ChunkKind
}

// Match reports whether chunk metadata satisfies the pushdown filter.
func (f StoreFilter) Match(c types.Chunk) bool {
	if f.DocumentID != "" && c.DocumentID != f.DocumentID {
		return false
	}
	if f.Statement != "" && f.Statement != types.StatementUnknown && c.Metadata.Statement != f.Statement {
		return false
	}
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	return true
}

// VectorStore stores embedded chunks and answers nearest-neighbor queries.
type VectorStore interface {
	AddChunks(ctx context.Context, chunks []StoredChunk) error
	Search(ctx context.Context, queryEmbedding []float64, topK int, filter StoreFilter) ([]SearchHit, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortByScore(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
