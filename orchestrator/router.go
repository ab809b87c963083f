// Package orchestrator routes questions to specialized agents, validates
// their partial answers with a bounded-retry state machine and composes the
// final answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/llm"
	"github.com/finsightai/finsight/types"
)

// categoryRule maps cue words to a task category. Rules are evaluated in
// order; every matching rule contributes one sub-query, so a question asking
// for both a ratio and its drivers fans out to multiple agents.
type categoryRule struct {
	category types.TaskCategory
	cues     []string
}

var categoryRules = []categoryRule{
	{types.TaskCalculation, []string{
		"calculate", "ratio", "roe", "return on equity", "ldr", "loan-to-deposit",
		"loan to deposit", "nim", "net interest margin", "percentage", "growth rate",
	}},
	{types.TaskTemporalComparison, []string{
		"compare", "compared", "vs", "versus", "difference", "change from", "trend",
		"over time", "year-over-year", "year over year", "yoy", "quarter-over-quarter",
		"qoq", "previous quarter", "last year",
	}},
	{types.TaskRiskExtraction, []string{
		"risk", "risks", "challenges", "uncertainty", "exposure", "npl", "impairment",
	}},
}

// statementHints narrow retrieval by statement when a question names one.
// Ordered so routing is deterministic when a question matches several.
var statementHints = []struct {
	hint      string
	statement types.StatementType
}{
	{"income statement", types.StatementIncome},
	{"profit and loss", types.StatementIncome},
	{"balance sheet", types.StatementBalance},
	{"financial position", types.StatementBalance},
	{"cash flow", types.StatementCashFlow},
	{"risk management", types.StatementRisk},
}

const routerSystemPrompt = `You classify financial statement questions. Respond with a JSON array of objects
with fields "category" (one of calculation, temporal_comparison, risk_extraction, narrative)
and "question" (the sub-question that category should answer). Respond with JSON only.`

// Router decomposes a question into routed sub-queries. Keyword rules decide
// first; an optional language model refines questions the rules cannot
// place. Routing always yields at least one sub-query.
type Router struct {
	provider llm.Provider // nil disables LLM fallback
	logger   *zap.Logger
}

// NewRouter creates a router. provider may be nil.
func NewRouter(provider llm.Provider, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{provider: provider, logger: logger.With(zap.String("component", "router"))}
}

// Route decomposes one question. Caller-pinned filters take precedence over
// anything derived from the question text.
func (r *Router) Route(ctx context.Context, question string, base types.RetrievalFilters) []types.SubQuery {
	filters := mergeFilters(base, deriveFilters(question))
	lower := strings.ToLower(question)

	var subs []types.SubQuery
	for _, rule := range categoryRules {
		for _, cue := range rule.cues {
			if strings.Contains(lower, cue) {
				subs = append(subs, types.SubQuery{
					ID:       fmt.Sprintf("sq-%d", len(subs)+1),
					Category: rule.category,
					Question: question,
					Filters:  filters,
				})
				break
			}
		}
	}

	if len(subs) == 0 && r.provider != nil {
		if llmSubs := r.routeWithLLM(ctx, question, filters); len(llmSubs) > 0 {
			subs = llmSubs
		}
	}

	if len(subs) == 0 {
		subs = []types.SubQuery{{
			ID:       "sq-1",
			Category: types.TaskNarrative,
			Question: question,
			Filters:  filters,
		}}
	}

	r.logger.Debug("question routed",
		zap.String("question", question),
		zap.Int("sub_queries", len(subs)))
	return subs
}

func (r *Router) routeWithLLM(ctx context.Context, question string, filters types.RetrievalFilters) []types.SubQuery {
	resp, err := r.provider.Complete(ctx, &llm.CompletionRequest{
		System:      routerSystemPrompt,
		Prompt:      question,
		Temperature: 0,
		MaxTokens:   300,
	})
	if err != nil {
		r.logger.Warn("llm routing failed, using narrative default", zap.Error(err))
		return nil
	}

	var parsed []struct {
		Category string `json:"category"`
		Question string `json:"question"`
	}
	raw := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		perr := types.NewError(types.ErrAgentParseFailure, "llm routing response unparseable").WithCause(err)
		r.logger.Warn("falling back to keyword routing", zap.Error(perr))
		return nil
	}

	var subs []types.SubQuery
	for _, p := range parsed {
		cat := types.TaskCategory(p.Category)
		switch cat {
		case types.TaskCalculation, types.TaskTemporalComparison, types.TaskRiskExtraction, types.TaskNarrative:
		default:
			continue
		}
		q := p.Question
		if strings.TrimSpace(q) == "" {
			q = question
		}
		subs = append(subs, types.SubQuery{
			ID:       fmt.Sprintf("sq-%d", len(subs)+1),
			Category: cat,
			Question: q,
			Filters:  filters,
		})
	}
	return subs
}

// mergeFilters folds caller-pinned filters over derived ones, axis by axis.
func mergeFilters(base, derived types.RetrievalFilters) types.RetrievalFilters {
	out := derived
	if base.PeriodFrom != nil {
		out.PeriodFrom = base.PeriodFrom
	}
	if base.PeriodTo != nil {
		out.PeriodTo = base.PeriodTo
	}
	if base.Statement != "" {
		out.Statement = base.Statement
	}
	if base.Kind != "" {
		out.Kind = base.Kind
	}
	return out
}

// deriveFilters builds retrieval filters from the question text: an explicit
// period range and a statement hint when present.
func deriveFilters(question string) types.RetrievalFilters {
	var f types.RetrievalFilters

	periods := types.ParsePeriods(question)
	if len(periods) > 0 {
		from, to := periods[0], periods[len(periods)-1]
		f.PeriodFrom = &from
		f.PeriodTo = &to
	}

	lower := strings.ToLower(question)
	for _, h := range statementHints {
		if strings.Contains(lower, h.hint) {
			f.Statement = h.statement
			break
		}
	}
	return f
}

// extractJSON trims code fences and surrounding prose from a model reply.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	if i := strings.Index(s, "["); i >= 0 {
		if j := strings.LastIndex(s, "]"); j > i {
			s = s[i : j+1]
		}
	}
	return strings.TrimSpace(s)
}
