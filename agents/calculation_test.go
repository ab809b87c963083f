package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/types"
)

func TestCalculationAgentRatio(t *testing.T) {
	retriever := newFakeRetriever().
		on("net income", candidateWithContent("num", "Net profit for the period was 1,500 million.")).
		on("total equity", candidateWithContent("den", "Total shareholders' equity stood at 10,000 million."))
	agent := NewCalculationAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskCalculation,
		Question: "What is the ROE for 2022?",
	})
	require.NoError(t, err)

	require.NotNil(t, answer.Value)
	assert.InDelta(t, 15.0, *answer.Value, 1e-9)
	assert.Contains(t, answer.Text, "return on equity")
	assert.Equal(t, []string{"num", "den"}, answer.ChunkIDs)
	assert.Greater(t, answer.Confidence, 0.0)
	assert.Equal(t, 2, retriever.callCount(), "one retrieval hop per ratio input")
}

func TestCalculationAgentRatioMissingDenominator(t *testing.T) {
	retriever := newFakeRetriever().
		on("net income", candidateWithContent("num", "Net profit for the period was 1,500 million."))
	agent := NewCalculationAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskCalculation,
		Question: "What is the return on equity?",
	})
	require.NoError(t, err)

	assert.Zero(t, answer.Confidence)
	assert.Nil(t, answer.Value)
	assert.Contains(t, answer.Text, "shareholder equity")
}

func TestCalculationAgentRatioZeroDenominator(t *testing.T) {
	retriever := newFakeRetriever().
		on("gross loans", candidateWithContent("num", "Total loans of 80,000 million.")).
		on("total deposits", candidateWithContent("den", "Total deposits were 0.5 million."))
	agent := NewCalculationAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskCalculation,
		Question: "What is the loan-to-deposit ratio?",
	})
	require.NoError(t, err)
	require.NotNil(t, answer.Value)
	assert.InDelta(t, 80000.0/0.5*100, *answer.Value, 1e-6)
}

func TestCalculationAgentSingleValue(t *testing.T) {
	retriever := newFakeRetriever()
	retriever.fallbak = []types.RetrievalCandidate{
		candidateWithContent("c1", "Net profit for the period was 320 million.",
			types.FiscalPeriod{Year: 2022, Quarter: types.Q3}),
	}
	agent := NewCalculationAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskCalculation,
		Question: "What was the net profit in Q3 2022?",
	})
	require.NoError(t, err)

	require.NotNil(t, answer.Value)
	assert.InDelta(t, 320.0, *answer.Value, 1e-9)
	assert.Contains(t, answer.Text, "2022_Q3")
	assert.Equal(t, []string{"c1"}, answer.ChunkIDs)
}

func TestCalculationAgentUnknownMetric(t *testing.T) {
	retriever := newFakeRetriever()
	agent := NewCalculationAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskCalculation,
		Question: "How many branches does the bank operate?",
	})
	require.NoError(t, err)
	assert.Zero(t, answer.Confidence)
}
