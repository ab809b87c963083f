package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/types"
)

func storedChunk(id, docID string, statement types.StatementType, kind types.ChunkKind, vec []float64) StoredChunk {
	return StoredChunk{
		Chunk: types.Chunk{
			ID:         id,
			DocumentID: docID,
			Content:    "content of " + id,
			Kind:       kind,
			Metadata: types.ChunkMetadata{
				DocumentID: docID,
				Statement:  statement,
			},
		},
		Embedding: vec,
	}
}

func TestMemoryStoreSearchRanksByCosine(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, []StoredChunk{
		storedChunk("a", "doc", types.StatementIncome, types.ChunkNarrative, []float64{1, 0, 0}),
		storedChunk("b", "doc", types.StatementIncome, types.ChunkNarrative, []float64{0.9, 0.1, 0}),
		storedChunk("c", "doc", types.StatementIncome, types.ChunkNarrative, []float64{0, 1, 0}),
	}))

	hits, err := store.Search(ctx, []float64{1, 0, 0}, 2, StoreFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Chunk.ID)
	assert.Equal(t, "b", hits[1].Chunk.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemoryStoreSearchAppliesFilter(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, []StoredChunk{
		storedChunk("inc", "doc", types.StatementIncome, types.ChunkNarrative, []float64{1, 0}),
		storedChunk("bal", "doc", types.StatementBalance, types.ChunkNarrative, []float64{1, 0}),
		storedChunk("tab", "doc", types.StatementIncome, types.ChunkTabular, []float64{1, 0}),
	}))

	hits, err := store.Search(ctx, []float64{1, 0}, 10, StoreFilter{Statement: types.StatementBalance})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bal", hits[0].Chunk.ID)

	hits, err = store.Search(ctx, []float64{1, 0}, 10, StoreFilter{Kind: types.ChunkTabular})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tab", hits[0].Chunk.ID)
}

func TestMemoryStoreEmptySearch(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	hits, err := store.Search(context.Background(), []float64{1, 0}, 5, StoreFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStoreAddRejectsMissingEmbedding(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	err := store.AddChunks(context.Background(), []StoredChunk{
		{Chunk: types.Chunk{ID: "naked"}},
	})
	assert.Error(t, err)
}

func TestMemoryStoreDeleteByDocument(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, []StoredChunk{
		storedChunk("a1", "doc-a", types.StatementIncome, types.ChunkNarrative, []float64{1, 0}),
		storedChunk("a2", "doc-a", types.StatementIncome, types.ChunkNarrative, []float64{0, 1}),
		storedChunk("b1", "doc-b", types.StatementIncome, types.ChunkNarrative, []float64{1, 0}),
	}))

	require.NoError(t, store.DeleteByDocument(ctx, "doc-a"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, ok := store.ChunkByID(ctx, "a1")
	assert.False(t, ok)
	got, ok := store.ChunkByID(ctx, "b1")
	require.True(t, ok)
	assert.Equal(t, "doc-b", got.DocumentID)
}
