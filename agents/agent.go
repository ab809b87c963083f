// Package agents implements the specialized answer agents: calculation,
// temporal comparison, risk extraction and narrative. Each agent consumes
// retrieval candidates for one routed sub-query and produces a partial
// answer with a self-assessed confidence.
package agents

import (
	"context"

	"github.com/finsightai/finsight/types"
)

// Retriever is the slice of the retrieval gateway agents depend on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters types.RetrievalFilters, topK int) ([]types.RetrievalCandidate, error)
}

// Agent answers one category of sub-query. Handle returns a zero-confidence
// partial answer when the evidence cannot support one; errors are reserved
// for collaborator failures.
type Agent interface {
	Category() types.TaskCategory
	Handle(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error)
}

// meanScore averages candidate similarity scores, 0 for no candidates.
func meanScore(candidates []types.RetrievalCandidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candidates {
		sum += c.Score
	}
	return sum / float64(len(candidates))
}

func chunkIDs(candidates []types.RetrievalCandidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Chunk.ID)
	}
	return ids
}

// noEvidence builds the zero-confidence answer every agent returns when its
// required fields cannot be extracted from the retrieved chunks.
func noEvidence(sub types.SubQuery, reason string, candidates []types.RetrievalCandidate) types.PartialAnswer {
	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   sub.Category,
		Text:       reason,
		ChunkIDs:   chunkIDs(candidates),
		Confidence: 0,
	}
}
