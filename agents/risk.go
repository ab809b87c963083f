package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// riskTaxonomy maps risk categories to the phrases that signal them in
// risk-management and commentary sections.
var riskTaxonomy = map[string][]string{
	"credit risk":      {"credit risk", "non-performing", "npl", "provision", "impairment", "loan loss"},
	"market risk":      {"market risk", "interest rate", "foreign exchange", "fx exposure", "trading"},
	"operational risk": {"operational risk", "cyber", "fraud", "compliance", "regulation", "internal control"},
	"strategic risk":   {"strategic risk", "competition", "market share", "digital transformation"},
	"liquidity risk":   {"liquidity", "funding", "capital adequacy", "lcr", "nsfr"},
}

var mitigationCues = []string{
	"mitigate", "manage", "control", "reduce", "minimize",
	"framework", "policy", "hedge", "enhance",
}

// riskFinding is one taxonomy category's evidence across retrieved chunks.
type riskFinding struct {
	category string
	mentions int
	snippets []string
	chunkIDs []string
}

// RiskAgent extracts and ranks risk factors from risk-management and
// commentary chunks, noting mitigation language where present.
type RiskAgent struct {
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

// NewRiskAgent creates the agent.
func NewRiskAgent(retriever Retriever, topK int, logger *zap.Logger) *RiskAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskAgent{
		retriever: retriever,
		topK:      topK,
		logger:    logger.With(zap.String("agent", "risk")),
	}
}

// Category implements Agent.
func (a *RiskAgent) Category() types.TaskCategory { return types.TaskRiskExtraction }

// Handle implements Agent.
func (a *RiskAgent) Handle(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error) {
	filters := sub.Filters
	if filters.Statement == "" {
		filters.Statement = types.StatementRisk
	}

	candidates, err := a.retriever.Retrieve(ctx, sub.Question, filters, a.topK)
	if err != nil {
		return types.PartialAnswer{}, err
	}
	if len(candidates) == 0 && filters.Statement == types.StatementRisk {
		// Risk language also lives in commentary; widen before giving up.
		filters.Statement = ""
		candidates, err = a.retriever.Retrieve(ctx, sub.Question, filters, a.topK)
		if err != nil {
			return types.PartialAnswer{}, err
		}
	}
	if len(candidates) == 0 {
		return noEvidence(sub, "no risk-related evidence retrieved", nil), nil
	}

	findings := a.analyze(candidates)
	if len(findings) == 0 {
		return noEvidence(sub, "retrieved evidence contains no recognizable risk factors", candidates), nil
	}

	mitigations := countMitigations(candidates)

	var b strings.Builder
	b.WriteString("Key risk factors identified: ")
	var ids []string
	for i, f := range findings {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s (%d mentions)", f.category, f.mentions)
		if len(f.snippets) > 0 {
			fmt.Fprintf(&b, " e.g. %q", f.snippets[0])
		}
		ids = append(ids, f.chunkIDs...)
	}
	if mitigations > 0 {
		fmt.Fprintf(&b, ". Mitigation language appears %d times across the evidence.", mitigations)
	}

	// Confidence scales with how much of the taxonomy the evidence actually
	// hit, capped so keyword density alone never reaches certainty.
	density := float64(findings[0].mentions) * 0.3
	if density > 0.9 {
		density = 0.9
	}
	confidence := meanScore(candidates) * density
	if confidence > meanScore(candidates) {
		confidence = meanScore(candidates)
	}

	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   sub.Category,
		Text:       b.String(),
		ChunkIDs:   dedupeStrings(ids),
		Confidence: confidence,
	}, nil
}

func (a *RiskAgent) analyze(candidates []types.RetrievalCandidate) []riskFinding {
	byCategory := make(map[string]*riskFinding)

	for _, cand := range candidates {
		lower := strings.ToLower(cand.Chunk.Content)
		for category, keywords := range riskTaxonomy {
			for _, kw := range keywords {
				count := strings.Count(lower, kw)
				if count == 0 {
					continue
				}
				f := byCategory[category]
				if f == nil {
					f = &riskFinding{category: category}
					byCategory[category] = f
				}
				f.mentions += count
				f.chunkIDs = append(f.chunkIDs, cand.Chunk.ID)
				if len(f.snippets) < 2 {
					if snip := contextSnippet(cand.Chunk.Content, kw); snip != "" {
						f.snippets = append(f.snippets, snip)
					}
				}
			}
		}
	}

	findings := make([]riskFinding, 0, len(byCategory))
	for _, f := range byCategory {
		f.chunkIDs = dedupeStrings(f.chunkIDs)
		findings = append(findings, *f)
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].mentions != findings[j].mentions {
			return findings[i].mentions > findings[j].mentions
		}
		return findings[i].category < findings[j].category
	})
	if len(findings) > 5 {
		findings = findings[:5]
	}
	return findings
}

func countMitigations(candidates []types.RetrievalCandidate) int {
	total := 0
	for _, cand := range candidates {
		lower := strings.ToLower(cand.Chunk.Content)
		for _, cue := range mitigationCues {
			total += strings.Count(lower, cue)
		}
	}
	return total
}

// contextSnippet returns the sentence fragment around a keyword's first
// occurrence.
func contextSnippet(text, keyword string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, keyword)
	if idx < 0 {
		return ""
	}
	start := idx - 40
	if start < 0 {
		start = 0
	}
	end := idx + len(keyword) + 40
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

func dedupeStrings(in []string) []string {
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

var _ Agent = (*RiskAgent)(nil)
