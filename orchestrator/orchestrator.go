package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finsightai/finsight/agents"
	"github.com/finsightai/finsight/types"
)

// ChunkResolver resolves a chunk id back to its chunk for citations. Stores
// that cannot do this cheaply may be omitted; citations then carry ids only.
type ChunkResolver interface {
	ChunkByID(ctx context.Context, id string) (types.Chunk, bool)
}

// Config tunes the orchestrator.
type Config struct {
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	MaxRetries          int           `json:"max_retries"`
	QuestionTimeout     time.Duration `json:"question_timeout"`
	BackoffBase         time.Duration `json:"backoff_base"`
	BackoffMax          time.Duration `json:"backoff_max"`
	CollaboratorRetries int           `json:"collaborator_retries"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		MaxRetries:          2,
		QuestionTimeout:     90 * time.Second,
		BackoffBase:         500 * time.Millisecond,
		BackoffMax:          8 * time.Second,
		CollaboratorRetries: 3,
	}
}

// Orchestrator answers questions end to end: cache lookup, routing, parallel
// sub-query validation and final aggregation.
type Orchestrator struct {
	cfg       Config
	router    *Router
	validator *Validator
	cache     *AnswerCache  // optional
	resolver  ChunkResolver // optional
	metrics   *Metrics      // optional
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(cfg Config, router *Router, agentList []agents.Agent, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := NewValidator(ValidatorConfig{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxRetries:          cfg.MaxRetries,
	}, agentList, logger)

	return &Orchestrator{
		cfg:       cfg,
		router:    router,
		validator: validator,
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// WithCache attaches an answer cache.
func (o *Orchestrator) WithCache(cache *AnswerCache) *Orchestrator {
	o.cache = cache
	return o
}

// WithResolver attaches a chunk resolver for citation enrichment.
func (o *Orchestrator) WithResolver(resolver ChunkResolver) *Orchestrator {
	o.resolver = resolver
	return o
}

// WithMetrics attaches Prometheus collectors.
func (o *Orchestrator) WithMetrics(m *Metrics) *Orchestrator {
	o.metrics = m
	o.validator.WithMetrics(m)
	return o
}

// AnswerQuestion runs one question to a terminal answer. Caller filters pin
// retrieval axes the question text may not mention; the zero value leaves
// routing to derive them. The question as a whole is bounded by
// QuestionTimeout; sub-queries run in parallel, each driven to Composed or
// Degraded by the validator.
func (o *Orchestrator) AnswerQuestion(ctx context.Context, question string, filters types.RetrievalFilters) (types.FinalAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return types.FinalAnswer{}, types.NewError(types.ErrInvalidRequest, "question is empty")
	}

	start := time.Now()
	cacheKey := cacheLookup(question, filters)
	if o.cache != nil {
		if ans, ok := o.cache.Get(ctx, cacheKey); ok {
			if o.metrics != nil {
				o.metrics.CacheHits.Inc()
			}
			o.logger.Debug("answer served from cache", zap.String("question", question))
			return ans, nil
		}
		if o.metrics != nil {
			o.metrics.CacheMisses.Inc()
		}
	}

	qctx := ctx
	var cancel context.CancelFunc
	if o.cfg.QuestionTimeout > 0 {
		qctx, cancel = context.WithTimeout(ctx, o.cfg.QuestionTimeout)
		defer cancel()
	}

	subs := o.router.Route(qctx, question, filters)
	outcomes := make([]subQueryOutcome, len(subs))

	g, gctx := errgroup.WithContext(qctx)
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = o.runSubQuery(gctx, sub)
			// Sub-query failures degrade the answer instead of aborting
			// sibling sub-queries.
			return nil
		})
	}
	_ = g.Wait()

	var chunkByID func(string) (types.Chunk, bool)
	if o.resolver != nil {
		chunkByID = func(id string) (types.Chunk, bool) {
			return o.resolver.ChunkByID(ctx, id)
		}
	}
	answer := o.validator.Aggregate(question, outcomes, chunkByID)

	if o.metrics != nil {
		o.metrics.QuestionsTotal.WithLabelValues(string(answer.Status)).Inc()
		o.metrics.QuestionDuration.Observe(time.Since(start).Seconds())
		o.metrics.AnswerConfidence.Observe(answer.Confidence)
	}
	if o.cache != nil {
		o.cache.Put(ctx, cacheKey, answer)
	}

	o.logger.Info("question answered",
		zap.String("question", question),
		zap.String("status", string(answer.Status)),
		zap.Float64("confidence", answer.Confidence),
		zap.Int("sub_queries", len(subs)),
		zap.Int("retries", answer.Retries),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}

// cacheLookup extends the cache key with any pinned filters, so the same
// question under different filters never collides.
func cacheLookup(question string, f types.RetrievalFilters) string {
	var parts []string
	if f.PeriodFrom != nil {
		parts = append(parts, "from="+f.PeriodFrom.String())
	}
	if f.PeriodTo != nil {
		parts = append(parts, "to="+f.PeriodTo.String())
	}
	if f.Statement != "" {
		parts = append(parts, "statement="+string(f.Statement))
	}
	if f.Kind != "" {
		parts = append(parts, "kind="+string(f.Kind))
	}
	if len(parts) == 0 {
		return question
	}
	return question + " [" + strings.Join(parts, " ") + "]"
}

// runSubQuery drives one sub-query, retrying whole attempts with backoff
// when a collaborator is unavailable.
func (o *Orchestrator) runSubQuery(ctx context.Context, sub types.SubQuery) subQueryOutcome {
	var outcome subQueryOutcome
	for attempt := 0; ; attempt++ {
		outcome = o.validator.Validate(ctx, sub)
		if outcome.err == nil || !types.IsRetryable(outcome.err) || attempt >= o.cfg.CollaboratorRetries {
			return outcome
		}
		o.logger.Warn("collaborator failure, backing off",
			zap.String("sub_query", sub.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(outcome.err))
		select {
		case <-ctx.Done():
			return outcome
		case <-time.After(Backoff(attempt, o.cfg.BackoffBase, o.cfg.BackoffMax)):
		}
	}
}
