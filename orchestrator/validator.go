package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/agents"
	"github.com/finsightai/finsight/types"
)

// ValidatorState is the aggregation state machine's phase.
type ValidatorState string

const (
	StateGathering  ValidatorState = "gathering"
	StateValidating ValidatorState = "validating"
	StateComposed   ValidatorState = "composed"
	StateDegraded   ValidatorState = "degraded"
)

// ValidatorConfig tunes aggregation.
type ValidatorConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxRetries          int     `json:"max_retries"` // per sub-query
}

// Validator drives each sub-query from Gathering through Validating to a
// terminal Composed or Degraded state. A sub-query whose confidence stays
// below the threshold is retried with progressively relaxed filters, at most
// MaxRetries times, so the machine can never get stuck.
type Validator struct {
	cfg     ValidatorConfig
	agents  map[types.TaskCategory]agents.Agent
	logger  *zap.Logger
	metrics *Metrics // optional
}

// NewValidator creates a validator over the registered agents.
func NewValidator(cfg ValidatorConfig, agentList []agents.Agent, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	byCat := make(map[types.TaskCategory]agents.Agent, len(agentList))
	for _, a := range agentList {
		byCat[a.Category()] = a
	}
	return &Validator{
		cfg:    cfg,
		agents: byCat,
		logger: logger.With(zap.String("component", "validator")),
	}
}

// WithMetrics attaches a metrics registry.
func (v *Validator) WithMetrics(m *Metrics) *Validator {
	v.metrics = m
	return v
}

// subQueryOutcome is one sub-query's terminal result.
type subQueryOutcome struct {
	answer  types.PartialAnswer
	state   ValidatorState
	retries int
	err     error
}

// Validate runs one sub-query to a terminal state.
func (v *Validator) Validate(ctx context.Context, sub types.SubQuery) subQueryOutcome {
	agent, ok := v.agents[sub.Category]
	if !ok {
		agent, ok = v.agents[types.TaskNarrative]
		if !ok {
			return subQueryOutcome{
				answer: types.PartialAnswer{SubQueryID: sub.ID, Category: sub.Category},
				state:  StateDegraded,
				err:    types.NewError(types.ErrInternalError, fmt.Sprintf("no agent for category %s", sub.Category)),
			}
		}
	}

	best := types.PartialAnswer{SubQueryID: sub.ID, Category: sub.Category}
	retries := 0

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return subQueryOutcome{answer: best, state: StateDegraded, retries: retries,
				err: types.NewError(types.ErrQuestionTimeout, "question deadline exceeded").WithCause(ctx.Err())}
		}

		attemptSub := sub
		attemptSub.Filters = sub.Filters.Relaxed(attempt)

		answer, err := agent.Handle(ctx, attemptSub)
		if err != nil {
			// Collaborator failure: the caller already retried with backoff,
			// so surface it as degraded evidence for this category.
			v.logger.Warn("agent failed",
				zap.String("sub_query", sub.ID),
				zap.String("category", string(sub.Category)),
				zap.Error(err))
			return subQueryOutcome{answer: best, state: StateDegraded, retries: retries, err: err}
		}

		if answer.Confidence > best.Confidence || best.Text == "" {
			best = answer
		}
		if answer.Confidence >= v.cfg.ConfidenceThreshold {
			return subQueryOutcome{answer: answer, state: StateComposed, retries: retries}
		}

		if attempt >= v.cfg.MaxRetries {
			v.logger.Info("retry budget exhausted",
				zap.String("sub_query", sub.ID),
				zap.String("category", string(sub.Category)),
				zap.Float64("best_confidence", best.Confidence),
				zap.Int("retries", retries))
			out := subQueryOutcome{answer: best, state: StateDegraded, retries: retries}
			if len(best.ChunkIDs) == 0 {
				out.err = types.NewError(types.ErrRetrievalEmpty,
					fmt.Sprintf("no supporting evidence retrieved for %s", sub.Category))
			}
			return out
		}
		retries++
		if v.metrics != nil {
			v.metrics.SubQueryRetries.WithLabelValues(string(sub.Category)).Inc()
		}
		v.logger.Debug("retrying sub-query with relaxed filters",
			zap.String("sub_query", sub.ID),
			zap.Int("attempt", attempt+1),
			zap.Float64("confidence", answer.Confidence))
	}
}

// Aggregate folds terminal sub-query outcomes into the final answer. Overall
// confidence is the minimum across sub-answers: the composed answer is only
// as trustworthy as its weakest contribution. Any degraded sub-query
// degrades the whole answer, with a caveat naming the insufficient category.
func (v *Validator) Aggregate(question string, outcomes []subQueryOutcome, chunkByID func(string) (types.Chunk, bool)) types.FinalAnswer {
	if len(outcomes) == 0 {
		return types.FinalAnswer{
			Text:   "No answer could be produced for this question.",
			Status: types.AnswerDegraded,
			Caveat: "no sub-queries were generated",
		}
	}

	var parts []string
	var degradedCats []string
	var unavailableCats []string
	minConfidence := 1.0
	totalRetries := 0
	var citations []types.Citation
	seenChunks := make(map[string]bool)

	for _, o := range outcomes {
		totalRetries += o.retries
		if o.answer.Text != "" && o.answer.Confidence > 0 {
			parts = append(parts, o.answer.Text)
		}
		if o.answer.Confidence < minConfidence {
			minConfidence = o.answer.Confidence
		}
		if o.state == StateDegraded {
			degradedCats = append(degradedCats, string(o.answer.Category))
			if o.err != nil && types.GetErrorCode(o.err) == types.ErrCollaboratorUnavailable {
				unavailableCats = append(unavailableCats, string(o.answer.Category))
			}
		}
		for _, id := range o.answer.ChunkIDs {
			if id == "" || seenChunks[id] {
				continue
			}
			seenChunks[id] = true
			c := types.Citation{ChunkID: id}
			if chunkByID != nil {
				if chunk, ok := chunkByID(id); ok {
					c.DocumentID = chunk.DocumentID
					c.Pages = chunk.PageRange()
				}
			}
			citations = append(citations, c)
		}
	}

	status := types.AnswerComposed
	var caveat string
	if len(degradedCats) > 0 {
		status = types.AnswerDegraded
		sort.Strings(degradedCats)
		caveat = fmt.Sprintf("evidence was insufficient for: %s", strings.Join(dedupe(degradedCats), ", "))
		if len(unavailableCats) > 0 {
			caveat += fmt.Sprintf(" (service unavailable for: %s)", strings.Join(dedupe(unavailableCats), ", "))
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		text = "The available evidence was insufficient to answer this question."
		minConfidence = 0
	}

	return types.FinalAnswer{
		Text:       text,
		Confidence: minConfidence,
		Citations:  citations,
		Status:     status,
		Retries:    totalRetries,
		Caveat:     caveat,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
