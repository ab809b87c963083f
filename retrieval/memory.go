package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// InMemoryVectorStore keeps embedded chunks in a slice and does brute-force
// cosine search. For tests and small corpora.
type InMemoryVectorStore struct {
	chunks []StoredChunk
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewInMemoryVectorStore creates an empty in-memory store.
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		chunks: make([]StoredChunk, 0),
		logger: logger.With(zap.String("component", "memory_store")),
	}
}

// AddChunks appends embedded chunks to the store.
func (s *InMemoryVectorStore) AddChunks(ctx context.Context, chunks []StoredChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.Chunk.ID)
		}
		s.chunks = append(s.chunks, c)
	}

	s.logger.Info("chunks added to vector store",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(s.chunks)))
	return nil
}

// Search returns the topK highest-scoring chunks passing the filter. An empty
// store yields an empty slice, never an error.
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, filter StoreFilter) ([]SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 || topK <= 0 {
		return []SearchHit{}, nil
	}

	hits := make([]SearchHit, 0, len(s.chunks))
	for _, c := range s.chunks {
		if !filter.Match(c.Chunk) {
			continue
		}
		hits = append(hits, SearchHit{
			Chunk: c.Chunk,
			Score: cosineSimilarity(queryEmbedding, c.Embedding),
		})
	}

	sortByScore(hits)
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// DeleteByDocument removes every chunk belonging to a document.
func (s *InMemoryVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]StoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if c.Chunk.DocumentID != documentID {
			filtered = append(filtered, c)
		}
	}

	deleted := len(s.chunks) - len(filtered)
	s.chunks = filtered

	if deleted > 0 {
		s.logger.Info("document chunks deleted",
			zap.String("document_id", documentID),
			zap.Int("deleted", deleted))
	}
	return nil
}

// ChunkByID resolves a stored chunk for citation enrichment.
func (s *InMemoryVectorStore) ChunkByID(ctx context.Context, id string) (types.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if c.Chunk.ID == id {
			return c.Chunk, true
		}
	}
	return types.Chunk{}, false
}

// Count returns the number of stored chunks.
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

var _ VectorStore = (*InMemoryVectorStore)(nil)
