package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// ratioSpec names a known ratio and its input metrics.
type ratioSpec struct {
	name        string
	triggers    []string
	numerator   Metric
	denominator Metric
	compute     func(num, den float64) (float64, error)
	unit        string
}

var ratioSpecs = []ratioSpec{
	{
		name:        "return on equity",
		triggers:    []string{"roe", "return on equity"},
		numerator:   MetricNetProfit,
		denominator: MetricEquity,
		compute:     ReturnOnEquity,
		unit:        "%",
	},
	{
		name:        "loan-to-deposit ratio",
		triggers:    []string{"ldr", "loan-to-deposit", "loan to deposit"},
		numerator:   MetricTotalLoans,
		denominator: MetricTotalDeposits,
		compute:     LoanToDeposit,
		unit:        "%",
	},
	{
		name:        "net interest margin",
		triggers:    []string{"nim", "net interest margin"},
		numerator:   MetricNetInterestIncome,
		denominator: MetricEarningAssets,
		compute:     NetInterestMargin,
		unit:        "%",
	},
}

// CalculationAgent answers ratio and single-value questions. Ratio questions
// run two retrieval hops, one per input metric, so the numerator and
// denominator can come from different statements.
type CalculationAgent struct {
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

// NewCalculationAgent creates the agent.
func NewCalculationAgent(retriever Retriever, topK int, logger *zap.Logger) *CalculationAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalculationAgent{
		retriever: retriever,
		topK:      topK,
		logger:    logger.With(zap.String("agent", "calculation")),
	}
}

// Category implements Agent.
func (a *CalculationAgent) Category() types.TaskCategory { return types.TaskCalculation }

// Handle implements Agent.
func (a *CalculationAgent) Handle(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error) {
	if spec := matchRatio(sub.Question); spec != nil {
		return a.handleRatio(ctx, sub, *spec)
	}
	return a.handleValue(ctx, sub)
}

func matchRatio(question string) *ratioSpec {
	q := strings.ToLower(question)
	for i, spec := range ratioSpecs {
		for _, t := range spec.triggers {
			if strings.Contains(q, t) {
				return &ratioSpecs[i]
			}
		}
	}
	return nil
}

func (a *CalculationAgent) handleRatio(ctx context.Context, sub types.SubQuery, spec ratioSpec) (types.PartialAnswer, error) {
	numCands, err := a.retrieveMetric(ctx, sub, spec.numerator)
	if err != nil {
		return types.PartialAnswer{}, err
	}
	denCands, err := a.retrieveMetric(ctx, sub, spec.denominator)
	if err != nil {
		return types.PartialAnswer{}, err
	}
	all := append(append([]types.RetrievalCandidate(nil), numCands...), denCands...)

	num, okNum := ExtractMetric(spec.numerator, numCands)
	den, okDen := ExtractMetric(spec.denominator, denCands)
	if !okNum || !okDen {
		missing := spec.numerator
		if okNum {
			missing = spec.denominator
		}
		a.logger.Warn("ratio input missing",
			zap.String("ratio", spec.name),
			zap.String("missing", string(missing)))
		return noEvidence(sub,
			fmt.Sprintf("could not extract %s needed for %s", missing.DisplayName(), spec.name), all), nil
	}

	value, err := spec.compute(num.Value, den.Value)
	if err != nil {
		return noEvidence(sub, fmt.Sprintf("cannot compute %s: %v", spec.name, err), all), nil
	}

	text := fmt.Sprintf("%s is %.2f%s (%s %.0f million over %s %.0f million)",
		spec.name, value, spec.unit,
		spec.numerator.DisplayName(), num.Value,
		spec.denominator.DisplayName(), den.Value)

	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   sub.Category,
		Text:       text,
		Value:      &value,
		ChunkIDs:   []string{num.ChunkID, den.ChunkID},
		Confidence: meanScore(all),
	}, nil
}

func (a *CalculationAgent) handleValue(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error) {
	metrics := DetectMetrics(sub.Question)
	candidates, err := a.retriever.Retrieve(ctx, sub.Question, sub.Filters, a.topK)
	if err != nil {
		return types.PartialAnswer{}, err
	}
	if len(metrics) == 0 {
		return noEvidence(sub, "question names no known financial metric", candidates), nil
	}

	ev, ok := ExtractMetric(metrics[0], candidates)
	if !ok {
		return noEvidence(sub,
			fmt.Sprintf("could not extract %s from retrieved evidence", metrics[0].DisplayName()), candidates), nil
	}

	text := fmt.Sprintf("%s is %.0f million", metrics[0].DisplayName(), ev.Value)
	if ev.Period != nil {
		text = fmt.Sprintf("%s for %s", text, ev.Period.String())
	}

	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   sub.Category,
		Text:       text,
		Value:      &ev.Value,
		ChunkIDs:   []string{ev.ChunkID},
		Confidence: meanScore(candidates),
	}, nil
}

// retrieveMetric biases the metric hop toward tabular statement chunks while
// keeping the sub-query's period filters.
func (a *CalculationAgent) retrieveMetric(ctx context.Context, sub types.SubQuery, metric Metric) ([]types.RetrievalCandidate, error) {
	filters := sub.Filters
	query := metric.Query() + " " + sub.Question
	return a.retriever.Retrieve(ctx, query, filters, a.topK)
}

var _ Agent = (*CalculationAgent)(nil)
