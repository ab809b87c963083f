package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/llm"
	"github.com/finsightai/finsight/types"
)

// GatewayConfig tunes retrieval behavior.
type GatewayConfig struct {
	TopK            int     `json:"top_k"`
	MaxTopK         int     `json:"max_top_k"`
	SimilarityFloor float64 `json:"similarity_floor"`
}

// DefaultGatewayConfig returns conservative defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{TopK: 5, MaxTopK: 20, SimilarityFloor: 0.25}
}

// Gateway is the single retrieval entry point for the query path. It embeds
// the query, runs a filtered store search and applies the similarity floor.
// It is also the ingestion sink: documents are embedded and stored through
// the same component that later serves them.
type Gateway struct {
	cfg    GatewayConfig
	store  VectorStore
	embed  llm.EmbedFunc
	logger *zap.Logger
}

// NewGateway creates a gateway over a vector store and an embedding function.
func NewGateway(cfg GatewayConfig, store VectorStore, embed llm.EmbedFunc, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 20
	}
	return &Gateway{
		cfg:    cfg,
		store:  store,
		embed:  embed,
		logger: logger.With(zap.String("component", "retrieval_gateway")),
	}
}

// Retrieve returns up to topK candidates above the similarity floor that
// satisfy the filters. Zero matches yields an empty slice, never an error;
// only collaborator failures (embedding, store) are errors.
func (g *Gateway) Retrieve(ctx context.Context, query string, filters types.RetrievalFilters, topK int) ([]types.RetrievalCandidate, error) {
	if topK <= 0 {
		topK = g.cfg.TopK
	}
	if topK > g.cfg.MaxTopK {
		topK = g.cfg.MaxTopK
	}

	queryVec, err := g.embed(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrCollaboratorUnavailable, "failed to embed query").
			WithCause(err).WithRetryable(true)
	}

	pushdown := StoreFilter{Statement: filters.Statement, Kind: filters.Kind}
	// Over-fetch so the range filter below does not starve the result set.
	hits, err := g.store.Search(ctx, queryVec, topK*2, pushdown)
	if err != nil {
		return nil, types.NewError(types.ErrCollaboratorUnavailable, "vector search failed").
			WithCause(err).WithRetryable(true)
	}

	out := make([]types.RetrievalCandidate, 0, len(hits))
	for _, h := range hits {
		if h.Score < g.cfg.SimilarityFloor {
			continue
		}
		if !filters.Match(h.Chunk.Metadata, h.Chunk.Kind) {
			continue
		}
		out = append(out, types.RetrievalCandidate{Chunk: h.Chunk, Score: h.Score, Filters: filters})
		if len(out) == topK {
			break
		}
	}

	g.logger.Debug("retrieval completed",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Int("candidates", len(out)))
	return out, nil
}

// ReplaceDocument embeds a document's chunks and replaces its stored set.
// Implements the ingestion pipeline's sink.
func (g *Gateway) ReplaceDocument(ctx context.Context, documentID string, chunks []types.Chunk) error {
	stored := make([]StoredChunk, 0, len(chunks))
	for _, c := range chunks {
		vec, err := g.embed(ctx, c.Content)
		if err != nil {
			return types.NewError(types.ErrCollaboratorUnavailable, "failed to embed chunk").
				WithCause(err).WithRetryable(true)
		}
		stored = append(stored, StoredChunk{Chunk: c, Embedding: vec})
	}

	if err := g.store.DeleteByDocument(ctx, documentID); err != nil {
		return types.NewError(types.ErrCollaboratorUnavailable, "failed to clear stale chunks").
			WithCause(err).WithRetryable(true)
	}
	if err := g.store.AddChunks(ctx, stored); err != nil {
		return types.NewError(types.ErrCollaboratorUnavailable, "failed to store chunks").
			WithCause(err).WithRetryable(true)
	}

	g.logger.Info("document chunks replaced",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(stored)))
	return nil
}
