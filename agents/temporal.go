package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// TemporalAgent answers comparisons across fiscal periods: year-over-year
// changes, quarter deltas and multi-period trends. It runs one retrieval per
// period so each period's figure comes from evidence filtered to that period.
type TemporalAgent struct {
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

// NewTemporalAgent creates the agent.
func NewTemporalAgent(retriever Retriever, topK int, logger *zap.Logger) *TemporalAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemporalAgent{
		retriever: retriever,
		topK:      topK,
		logger:    logger.With(zap.String("agent", "temporal")),
	}
}

// Category implements Agent.
func (a *TemporalAgent) Category() types.TaskCategory { return types.TaskTemporalComparison }

// Handle implements Agent.
func (a *TemporalAgent) Handle(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error) {
	periods := resolvePeriods(sub.Question)
	if len(periods) < 2 {
		if cue := detectComparisonCue(sub.Question); cue != cueNone {
			if anchor, ok := a.anchorPeriod(ctx, sub); ok {
				periods = expandCue(anchor, cue)
			}
		}
	}
	if len(periods) < 2 {
		candidates, err := a.retriever.Retrieve(ctx, sub.Question, sub.Filters, a.topK)
		if err != nil {
			return types.PartialAnswer{}, err
		}
		return noEvidence(sub, "question does not identify two comparable fiscal periods", candidates), nil
	}

	metrics := DetectMetrics(sub.Question)
	metric := MetricNetProfit
	if len(metrics) > 0 {
		metric = metrics[0]
	}

	type periodValue struct {
		period types.FiscalPeriod
		value  float64
	}
	var series []periodValue
	var all []types.RetrievalCandidate
	var usedChunks []string

	for _, p := range periods {
		filters := sub.Filters
		pCopy := p
		filters.PeriodFrom = &pCopy
		filters.PeriodTo = &pCopy

		query := fmt.Sprintf("%s %s", metric.Query(), p.String())
		candidates, err := a.retriever.Retrieve(ctx, query, filters, a.topK)
		if err != nil {
			return types.PartialAnswer{}, err
		}
		all = append(all, candidates...)

		ev, ok := ExtractMetric(metric, candidates)
		if !ok {
			continue
		}
		series = append(series, periodValue{period: p, value: ev.Value})
		usedChunks = append(usedChunks, ev.ChunkID)
	}

	if len(series) < 2 {
		a.logger.Warn("insufficient periods extracted",
			zap.String("metric", string(metric)),
			zap.Int("wanted", len(periods)),
			zap.Int("got", len(series)))
		return noEvidence(sub,
			fmt.Sprintf("could not extract %s for enough periods to compare", metric.DisplayName()), all), nil
	}

	sort.Slice(series, func(i, j int) bool { return series[i].period.Before(series[j].period) })

	if len(series) == 2 {
		change, err := PercentageChange(series[0].value, series[1].value)
		if err != nil {
			return noEvidence(sub, fmt.Sprintf("cannot compare periods: %v", err), all), nil
		}
		direction := "increased"
		if change < 0 {
			direction = "decreased"
		}
		text := fmt.Sprintf("%s %s %.1f%% from %.0f million in %s to %.0f million in %s",
			metric.DisplayName(), direction, abs(change),
			series[0].value, series[0].period.String(),
			series[1].value, series[1].period.String())
		return types.PartialAnswer{
			SubQueryID: sub.ID,
			Category:   sub.Category,
			Text:       text,
			Value:      &change,
			ChunkIDs:   usedChunks,
			Confidence: meanScore(all),
		}, nil
	}

	values := make([]float64, len(series))
	labels := make([]string, len(series))
	for i, pv := range series {
		values[i] = pv.value
		labels[i] = pv.period.String()
	}
	trend, err := Trend(values, labels)
	if err != nil {
		return noEvidence(sub, fmt.Sprintf("cannot compute trend: %v", err), all), nil
	}

	text := fmt.Sprintf("%s averaged %.0f million across %d periods (low %.0f in %s, high %.0f in %s, average growth %.1f%% per period)",
		metric.DisplayName(), trend.Mean, len(series),
		trend.Min, trend.MinPeriod, trend.Max, trend.MaxPeriod, trend.AverageGrowth)

	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   sub.Category,
		Text:       text,
		Value:      &trend.AverageGrowth,
		ChunkIDs:   usedChunks,
		Confidence: meanScore(all),
	}, nil
}

// comparisonCue is the kind of relative comparison a question asks for.
type comparisonCue int

const (
	cueNone comparisonCue = iota
	cueYearOverYear
	cueQuarterOverQuarter
)

func detectComparisonCue(question string) comparisonCue {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "year-over-year") || strings.Contains(q, "year over year") ||
		strings.Contains(q, "yoy") || strings.Contains(q, "compared to last year") ||
		strings.Contains(q, "versus last year") || strings.Contains(q, "vs last year"):
		return cueYearOverYear
	case strings.Contains(q, "quarter-over-quarter") || strings.Contains(q, "quarter over quarter") ||
		strings.Contains(q, "qoq") || strings.Contains(q, "previous quarter"):
		return cueQuarterOverQuarter
	}
	return cueNone
}

func expandCue(p types.FiscalPeriod, cue comparisonCue) []types.FiscalPeriod {
	if cue == cueQuarterOverQuarter {
		return []types.FiscalPeriod{p.Previous(), p}
	}
	return []types.FiscalPeriod{p.YearAgo(), p}
}

// resolvePeriods extracts the periods a comparison question spans. A single
// explicit period plus a year-over-year cue expands to that period and its
// year-ago counterpart.
func resolvePeriods(question string) []types.FiscalPeriod {
	periods := types.ParsePeriods(question)
	if len(periods) >= 2 {
		return periods
	}
	if len(periods) == 1 {
		if cue := detectComparisonCue(question); cue != cueNone {
			return expandCue(periods[0], cue)
		}
	}
	return periods
}

// anchorPeriod picks the period a bare comparison cue refers to: the pinned
// end of the sub-query's filter range when present, otherwise the latest
// period mentioned by an initial retrieval pass.
func (a *TemporalAgent) anchorPeriod(ctx context.Context, sub types.SubQuery) (types.FiscalPeriod, bool) {
	if sub.Filters.PeriodTo != nil {
		return *sub.Filters.PeriodTo, true
	}
	if sub.Filters.PeriodFrom != nil {
		return *sub.Filters.PeriodFrom, true
	}

	candidates, err := a.retriever.Retrieve(ctx, sub.Question, sub.Filters, a.topK)
	if err != nil {
		return types.FiscalPeriod{}, false
	}
	var latest types.FiscalPeriod
	found := false
	for _, c := range candidates {
		for _, p := range c.Chunk.Metadata.Periods {
			if !found || latest.Before(p) {
				latest = p
				found = true
			}
		}
	}
	if found {
		a.logger.Debug("anchored relative comparison to latest retrieved period",
			zap.String("period", latest.String()))
	}
	return latest, found
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ Agent = (*TemporalAgent)(nil)
