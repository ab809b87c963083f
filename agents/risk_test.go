package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/types"
)

func riskCandidate(id string, statement types.StatementType, content string) types.RetrievalCandidate {
	return types.RetrievalCandidate{
		Chunk: types.Chunk{
			ID:       id,
			Content:  content,
			Metadata: types.ChunkMetadata{Statement: statement},
		},
		Score: 0.7,
	}
}

func TestRiskAgentFindsTaxonomyCategories(t *testing.T) {
	retriever := newFakeRetriever()
	retriever.fallbak = []types.RetrievalCandidate{
		riskCandidate("r1", types.StatementRisk,
			"Credit risk remains elevated. Non-performing loans rose and impairment charges increased. The bank continues to mitigate credit risk through collateral policy."),
		riskCandidate("r2", types.StatementRisk,
			"Liquidity remains comfortable with LCR above regulatory minimums."),
	}
	agent := NewRiskAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskRiskExtraction,
		Question: "What are the main risk factors?",
	})
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "credit risk")
	assert.Contains(t, answer.Text, "liquidity risk")
	assert.Contains(t, answer.Text, "Mitigation language")
	assert.ElementsMatch(t, []string{"r1", "r2"}, answer.ChunkIDs)
	assert.Greater(t, answer.Confidence, 0.0)
	assert.LessOrEqual(t, answer.Confidence, 0.7)
}

func TestRiskAgentDefaultsToRiskStatement(t *testing.T) {
	retriever := newFakeRetriever()
	retriever.fallbak = []types.RetrievalCandidate{
		riskCandidate("r1", types.StatementRisk, "Operational risk from cyber incidents is managed via internal control reviews."),
	}
	agent := NewRiskAgent(retriever, 5, nil)

	_, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskRiskExtraction,
		Question: "What risks does the bank face?",
	})
	require.NoError(t, err)

	require.NotEmpty(t, retriever.calls)
	assert.Equal(t, types.StatementRisk, retriever.calls[0].filters.Statement)
}

func TestRiskAgentWidensWhenRiskSectionEmpty(t *testing.T) {
	retriever := newFakeRetriever()
	retriever.fallbak = []types.RetrievalCandidate{
		riskCandidate("c1", types.StatementCommentary,
			"Management noted competition and market share pressure from digital entrants."),
	}
	agent := NewRiskAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskRiskExtraction,
		Question: "What risks does the bank face?",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, retriever.callCount(), "widens to all statements when the risk section is empty")
	assert.Contains(t, answer.Text, "strategic risk")
}

func TestRiskAgentNoEvidence(t *testing.T) {
	retriever := newFakeRetriever()
	agent := NewRiskAgent(retriever, 5, nil)

	answer, err := agent.Handle(context.Background(), types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskRiskExtraction,
		Question: "What risks does the bank face?",
	})
	require.NoError(t, err)
	assert.Zero(t, answer.Confidence)
}

func TestRiskAgentRanksByMentions(t *testing.T) {
	cands := []types.RetrievalCandidate{
		riskCandidate("c1", types.StatementRisk,
			"credit risk credit risk credit risk. liquidity pressure noted once."),
	}
	agent := NewRiskAgent(newFakeRetriever(), 5, nil)
	findings := agent.analyze(cands)

	require.NotEmpty(t, findings)
	assert.Equal(t, "credit risk", findings[0].category)
	assert.GreaterOrEqual(t, findings[0].mentions, 3)
}
