package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsightai/finsight/agents"
	"github.com/finsightai/finsight/types"
)

// stubAgent replays a scripted confidence sequence, one entry per attempt.
// The last entry repeats once the script runs out.
type stubAgent struct {
	mu          sync.Mutex
	category    types.TaskCategory
	confidences []float64
	err         error
	noEvidence  bool
	calls       int
	filtersSeen []types.RetrievalFilters
}

func (s *stubAgent) Category() types.TaskCategory { return s.category }

func (s *stubAgent) Handle(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filtersSeen = append(s.filtersSeen, sub.Filters)
	idx := s.calls
	s.calls++
	if s.err != nil {
		return types.PartialAnswer{}, s.err
	}
	if idx >= len(s.confidences) {
		idx = len(s.confidences) - 1
	}
	conf := s.confidences[idx]
	if s.noEvidence {
		return types.PartialAnswer{SubQueryID: sub.ID, Category: s.category, Confidence: conf}, nil
	}
	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   s.category,
		Text:       "stub answer",
		ChunkIDs:   []string{"chunk-1"},
		Confidence: conf,
	}, nil
}

func (s *stubAgent) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestValidator(cfg ValidatorConfig, stubs ...*stubAgent) *Validator {
	list := make([]agents.Agent, 0, len(stubs))
	for _, s := range stubs {
		list = append(list, s)
	}
	return NewValidator(cfg, list, nil)
}

func TestValidateComposesAboveThreshold(t *testing.T) {
	stub := &stubAgent{category: types.TaskCalculation, confidences: []float64{0.9}}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2}, stub)

	outcome := v.Validate(context.Background(), types.SubQuery{ID: "sq-1", Category: types.TaskCalculation})

	assert.Equal(t, StateComposed, outcome.state)
	assert.Zero(t, outcome.retries)
	assert.Equal(t, 1, stub.callCount())
}

func TestValidateRetriesThenComposes(t *testing.T) {
	stub := &stubAgent{category: types.TaskCalculation, confidences: []float64{0.3, 0.8}}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2}, stub)

	outcome := v.Validate(context.Background(), types.SubQuery{ID: "sq-1", Category: types.TaskCalculation})

	assert.Equal(t, StateComposed, outcome.state)
	assert.Equal(t, 1, outcome.retries)
	assert.Equal(t, 2, stub.callCount())
}

func TestValidateExhaustsRetryBudget(t *testing.T) {
	stub := &stubAgent{category: types.TaskCalculation, confidences: []float64{0.1}}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2}, stub)

	outcome := v.Validate(context.Background(), types.SubQuery{ID: "sq-1", Category: types.TaskCalculation})

	assert.Equal(t, StateDegraded, outcome.state)
	assert.Equal(t, 2, outcome.retries)
	assert.Equal(t, 3, stub.callCount(), "initial attempt plus two retries, never more")
	assert.InDelta(t, 0.1, outcome.answer.Confidence, 1e-9, "degraded keeps the best attempt")
}

func TestValidateExhaustedWithoutEvidenceReportsEmptyRetrieval(t *testing.T) {
	stub := &stubAgent{category: types.TaskCalculation, confidences: []float64{0}, noEvidence: true}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 1}, stub)

	outcome := v.Validate(context.Background(), types.SubQuery{ID: "sq-1", Category: types.TaskCalculation})

	assert.Equal(t, StateDegraded, outcome.state)
	require.Error(t, outcome.err)
	assert.Equal(t, types.ErrRetrievalEmpty, types.GetErrorCode(outcome.err))
	assert.False(t, types.IsRetryable(outcome.err))
}

func TestValidateRelaxesFiltersPerAttempt(t *testing.T) {
	stub := &stubAgent{category: types.TaskCalculation, confidences: []float64{0.1}}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2}, stub)

	from := types.FiscalPeriod{Year: 2022, Quarter: types.Q3}
	sub := types.SubQuery{
		ID:       "sq-1",
		Category: types.TaskCalculation,
		Filters: types.RetrievalFilters{
			PeriodFrom: &from,
			PeriodTo:   &from,
			Statement:  types.StatementIncome,
		},
	}
	v.Validate(context.Background(), sub)

	require.Len(t, stub.filtersSeen, 3)
	assert.Equal(t, 2022, stub.filtersSeen[0].PeriodFrom.Year)
	assert.Equal(t, 2021, stub.filtersSeen[1].PeriodFrom.Year, "second attempt widens the period window")
	assert.Empty(t, stub.filtersSeen[2].Statement, "third attempt drops categorical filters")
	assert.Equal(t, types.StatementIncome, sub.Filters.Statement, "original filters stay untouched")
}

func TestValidateAgentErrorDegrades(t *testing.T) {
	stub := &stubAgent{
		category: types.TaskCalculation,
		err:      types.NewError(types.ErrCollaboratorUnavailable, "store down").WithRetryable(true),
	}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2}, stub)

	outcome := v.Validate(context.Background(), types.SubQuery{ID: "sq-1", Category: types.TaskCalculation})

	assert.Equal(t, StateDegraded, outcome.state)
	require.Error(t, outcome.err)
	assert.Equal(t, 1, stub.callCount(), "collaborator retries belong to the caller, not the validator")
}

func TestValidateFallsBackToNarrativeAgent(t *testing.T) {
	stub := &stubAgent{category: types.TaskNarrative, confidences: []float64{0.9}}
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2}, stub)

	outcome := v.Validate(context.Background(), types.SubQuery{ID: "sq-1", Category: types.TaskRiskExtraction})

	assert.Equal(t, StateComposed, outcome.state)
	assert.Equal(t, 1, stub.callCount())
}

func TestAggregateMinConfidence(t *testing.T) {
	v := newTestValidator(ValidatorConfig{ConfidenceThreshold: 0.6, MaxRetries: 2})
	outcomes := []subQueryOutcome{
		{answer: types.PartialAnswer{Category: types.TaskCalculation, Text: "ROE is 15%", Confidence: 0.9, ChunkIDs: []string{"a"}}, state: StateComposed},
		{answer: types.PartialAnswer{Category: types.TaskNarrative, Text: "Growth was broad.", Confidence: 0.65, ChunkIDs: []string{"b"}}, state: StateComposed, retries: 1},
	}

	ans := v.Aggregate("q", outcomes, nil)

	assert.Equal(t, types.AnswerComposed, ans.Status)
	assert.InDelta(t, 0.65, ans.Confidence, 1e-9, "overall confidence is the weakest contribution")
	assert.Equal(t, 1, ans.Retries)
	assert.Contains(t, ans.Text, "ROE is 15%")
	assert.Contains(t, ans.Text, "Growth was broad.")
	assert.Len(t, ans.Citations, 2)
	assert.Empty(t, ans.Caveat)
}

func TestAggregateDegradedCaveatNamesCategories(t *testing.T) {
	v := newTestValidator(ValidatorConfig{})
	outcomes := []subQueryOutcome{
		{answer: types.PartialAnswer{Category: types.TaskCalculation, Text: "ROE is 15%", Confidence: 0.9}, state: StateComposed},
		{answer: types.PartialAnswer{Category: types.TaskRiskExtraction, Confidence: 0}, state: StateDegraded},
	}

	ans := v.Aggregate("q", outcomes, nil)

	assert.Equal(t, types.AnswerDegraded, ans.Status)
	assert.Zero(t, ans.Confidence)
	assert.Contains(t, ans.Caveat, "risk_extraction")
}

func TestAggregateCollaboratorUnavailableInCaveat(t *testing.T) {
	v := newTestValidator(ValidatorConfig{})
	outcomes := []subQueryOutcome{
		{
			answer: types.PartialAnswer{Category: types.TaskNarrative},
			state:  StateDegraded,
			err:    types.NewError(types.ErrCollaboratorUnavailable, "store down"),
		},
	}

	ans := v.Aggregate("q", outcomes, nil)
	assert.Contains(t, ans.Caveat, "service unavailable")
	assert.Contains(t, ans.Text, "insufficient")
}

func TestAggregateEnrichesCitations(t *testing.T) {
	v := newTestValidator(ValidatorConfig{})
	outcomes := []subQueryOutcome{
		{answer: types.PartialAnswer{Category: types.TaskCalculation, Text: "x", Confidence: 0.9, ChunkIDs: []string{"a", "a", "b"}}, state: StateComposed},
	}
	resolver := func(id string) (types.Chunk, bool) {
		if id == "a" {
			return types.Chunk{ID: "a", DocumentID: "doc-1", Metadata: types.ChunkMetadata{PageFirst: 3, PageLast: 4}}, true
		}
		return types.Chunk{}, false
	}

	ans := v.Aggregate("q", outcomes, resolver)

	require.Len(t, ans.Citations, 2, "duplicate chunk ids collapse")
	assert.Equal(t, "doc-1", ans.Citations[0].DocumentID)
	assert.Equal(t, "p3-p4", ans.Citations[0].Pages)
	assert.Empty(t, ans.Citations[1].DocumentID, "unresolvable ids stay id-only")
}
