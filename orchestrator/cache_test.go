package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/types"
)

func newTestCache(t *testing.T) (*AnswerCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewAnswerCache(client, time.Minute, nil), mr
}

func TestCachePutAndGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ans := types.FinalAnswer{
		Text:       "ROE is 15%",
		Confidence: 0.85,
		Status:     types.AnswerComposed,
		Citations:  []types.Citation{{ChunkID: "a", DocumentID: "doc", Pages: "p3"}},
	}
	cache.Put(ctx, "What is the ROE?", ans)

	got, ok := cache.Get(ctx, "What is the ROE?")
	require.True(t, ok)
	assert.Equal(t, ans, got)
}

func TestCacheKeyNormalizesWhitespaceAndCase(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Put(ctx, "What is the ROE?", types.FinalAnswer{Text: "x", Status: types.AnswerComposed})

	_, ok := cache.Get(ctx, "  what   IS the roe?  ")
	assert.True(t, ok)
}

func TestCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)
	_, ok := cache.Get(context.Background(), "never asked")
	assert.False(t, ok)
}

func TestCacheSkipsDegradedAnswers(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Put(ctx, "risky question", types.FinalAnswer{
		Text:   "partial",
		Status: types.AnswerDegraded,
		Caveat: "evidence was insufficient for: risk_extraction",
	})

	_, ok := cache.Get(ctx, "risky question")
	assert.False(t, ok, "degraded answers must not be served from cache")
}

func TestCacheEntryExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Put(ctx, "q", types.FinalAnswer{Text: "x", Status: types.AnswerComposed})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, "q")
	assert.False(t, ok)
}

func TestCacheRedisDownIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewAnswerCache(client, time.Minute, nil)
	mr.Close()

	_, ok := cache.Get(context.Background(), "q")
	assert.False(t, ok)
}
