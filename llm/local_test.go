package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Net profit rose 17% in Q3 2022.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Net profit rose 17% in Q3 2022.")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e := NewLocalEmbedder(64)
	vec, err := e.Embed(context.Background(), "loans deposits equity revenue")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocalEmbedderSimilarTextsCloser(t *testing.T) {
	e := NewLocalEmbedder(256)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "net interest income grew on higher loan yields")
	near, _ := e.Embed(ctx, "net interest income grew on loan repricing")
	far, _ := e.Embed(ctx, "the board approved a new branch network strategy")

	assert.Greater(t, dot(base, near), dot(base, far))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
