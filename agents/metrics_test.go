package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/types"
)

func candidateWithContent(id, content string, periods ...types.FiscalPeriod) types.RetrievalCandidate {
	return types.RetrievalCandidate{
		Chunk: types.Chunk{
			ID:       id,
			Content:  content,
			Metadata: types.ChunkMetadata{Periods: periods},
		},
		Score: 0.8,
	}
}

func TestDetectMetrics(t *testing.T) {
	got := DetectMetrics("What was the net profit in Q3 2022?")
	require.Len(t, got, 1)
	assert.Equal(t, MetricNetProfit, got[0])

	got = DetectMetrics("Compare total loans against customer deposits")
	assert.Equal(t, []Metric{MetricTotalLoans, MetricTotalDeposits}, got)

	assert.Empty(t, DetectMetrics("Tell me about the branch network"))
}

func TestExtractMetricPlainNumber(t *testing.T) {
	cands := []types.RetrievalCandidate{
		candidateWithContent("c1", "Net profit for the period was 1,234 million dinars."),
	}
	ev, ok := ExtractMetric(MetricNetProfit, cands)
	require.True(t, ok)
	assert.InDelta(t, 1234.0, ev.Value, 1e-9)
	assert.Equal(t, "c1", ev.ChunkID)
}

func TestExtractMetricBillionNormalization(t *testing.T) {
	cands := []types.RetrievalCandidate{
		candidateWithContent("c1", "Total assets reached 3.2 billion at year end."),
	}
	ev, ok := ExtractMetric(MetricTotalAssets, cands)
	require.True(t, ok)
	assert.InDelta(t, 3200.0, ev.Value, 1e-9)
}

func TestExtractMetricThousandsNormalization(t *testing.T) {
	cands := []types.RetrievalCandidate{
		candidateWithContent("c1", "Net interest income 450,000 '000"),
	}
	ev, ok := ExtractMetric(MetricNetInterestIncome, cands)
	require.True(t, ok)
	assert.InDelta(t, 450.0, ev.Value, 1e-9)
}

func TestExtractMetricCarriesPeriod(t *testing.T) {
	p := types.FiscalPeriod{Year: 2022, Quarter: types.Q3}
	cands := []types.RetrievalCandidate{
		candidateWithContent("c1", "Net profit was 320 million.", p),
	}
	ev, ok := ExtractMetric(MetricNetProfit, cands)
	require.True(t, ok)
	require.NotNil(t, ev.Period)
	assert.Equal(t, p, *ev.Period)
}

func TestExtractMetricMissing(t *testing.T) {
	cands := []types.RetrievalCandidate{
		candidateWithContent("c1", "The bank expanded its digital channels."),
	}
	_, ok := ExtractMetric(MetricNetProfit, cands)
	assert.False(t, ok)
}

func TestExtractMetricWindowBound(t *testing.T) {
	// The number sits far beyond the scan window after the alias.
	filler := make([]byte, 200)
	for i := range filler {
		filler[i] = 'x'
	}
	cands := []types.RetrievalCandidate{
		candidateWithContent("c1", "net profit "+string(filler)+" 999"),
	}
	_, ok := ExtractMetric(MetricNetProfit, cands)
	assert.False(t, ok)
}
