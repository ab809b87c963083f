package types

// TaskCategory classifies a sub-query for routing to a specialized agent.
type TaskCategory string

const (
	TaskCalculation        TaskCategory = "calculation"
	TaskTemporalComparison TaskCategory = "temporal_comparison"
	TaskRiskExtraction     TaskCategory = "risk_extraction"
	TaskNarrative          TaskCategory = "narrative"
)

// RetrievalFilters narrows retrieval by period range, statement and chunk
// kind. Zero values mean no constraint on that axis.
type RetrievalFilters struct {
	PeriodFrom *FiscalPeriod `json:"period_from,omitempty"`
	PeriodTo   *FiscalPeriod `json:"period_to,omitempty"`
	Statement  StatementType `json:"statement,omitempty"`
	Kind       ChunkKind     `json:"kind,omitempty"`
}

// Match reports whether chunk metadata satisfies every set filter. Chunks
// carrying no period metadata pass period filters rather than being dropped,
// since absence of a detected period is not evidence of mismatch.
func (f RetrievalFilters) Match(meta ChunkMetadata, kind ChunkKind) bool {
	if f.Statement != "" && f.Statement != StatementUnknown && meta.Statement != f.Statement {
		return false
	}
	if f.Kind != "" && kind != f.Kind && kind != ChunkMixed {
		return false
	}
	if (f.PeriodFrom != nil || f.PeriodTo != nil) && len(meta.Periods) > 0 {
		for _, p := range meta.Periods {
			if f.PeriodFrom != nil && p.Before(*f.PeriodFrom) {
				continue
			}
			if f.PeriodTo != nil && f.PeriodTo.Before(p) {
				continue
			}
			return true
		}
		return false
	}
	return true
}

// Relaxed returns a progressively looser copy of the filters for retry
// attempt n. Attempt 1 widens the fiscal range by a year in each direction;
// attempt 2 and beyond additionally drops the statement and kind filters.
func (f RetrievalFilters) Relaxed(attempt int) RetrievalFilters {
	out := f
	if attempt <= 0 {
		return out
	}
	if f.PeriodFrom != nil {
		from := FiscalPeriod{Year: f.PeriodFrom.Year - attempt, Quarter: f.PeriodFrom.Quarter}
		out.PeriodFrom = &from
	}
	if f.PeriodTo != nil {
		to := FiscalPeriod{Year: f.PeriodTo.Year + attempt, Quarter: f.PeriodTo.Quarter}
		out.PeriodTo = &to
	}
	if attempt >= 2 {
		out.Statement = ""
		out.Kind = ""
	}
	return out
}

// SubQuery is one routed unit of work for a specialized agent.
type SubQuery struct {
	ID          string           `json:"id"`
	Category    TaskCategory     `json:"category"`
	Question    string           `json:"question"`
	Instruction string           `json:"instruction,omitempty"`
	Filters     RetrievalFilters `json:"filters"`
}

// RetrievalCandidate is one scored chunk returned for a sub-query. Ephemeral,
// created per query.
type RetrievalCandidate struct {
	Chunk   Chunk            `json:"chunk"`
	Score   float64          `json:"score"`
	Filters RetrievalFilters `json:"filters"`
}

// PartialAnswer is one agent's contribution toward the final answer.
type PartialAnswer struct {
	SubQueryID string       `json:"sub_query_id"`
	Category   TaskCategory `json:"category"`
	Text       string       `json:"text"`
	Value      *float64     `json:"value,omitempty"` // numeric result, when the agent computed one
	ChunkIDs   []string     `json:"chunk_ids"`
	Confidence float64      `json:"confidence"`
}

// AnswerStatus marks whether the validator composed a confident answer or
// degraded after exhausting its retry budget.
type AnswerStatus string

const (
	AnswerComposed AnswerStatus = "composed"
	AnswerDegraded AnswerStatus = "degraded"
)

// Citation points a reader back to the evidence for an answer.
type Citation struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Pages      string `json:"pages"`
}

// FinalAnswer is the orchestrator's user-facing result.
type FinalAnswer struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Citations  []Citation   `json:"citations"`
	Status     AnswerStatus `json:"status"`
	Retries    int          `json:"retries"`
	Caveat     string       `json:"caveat,omitempty"` // set on degraded answers, names the insufficient evidence
}
