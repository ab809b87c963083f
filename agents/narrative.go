package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/llm"
	"github.com/finsightai/finsight/types"
)

const narrativeSystemPrompt = `You are a financial analyst answering questions about bank financial statements.
Answer only from the provided excerpts. If the excerpts do not contain the answer, say so.
Be concise and cite figures exactly as they appear.`

// NarrativeAgent answers open-ended questions. With a language model it
// composes a grounded summary over the retrieved excerpts; without one it
// degrades to an extractive answer built from the top chunks.
type NarrativeAgent struct {
	retriever Retriever
	provider  llm.Provider // nil enables extractive fallback only
	topK      int
	logger    *zap.Logger
}

// NewNarrativeAgent creates the agent. provider may be nil.
func NewNarrativeAgent(retriever Retriever, provider llm.Provider, topK int, logger *zap.Logger) *NarrativeAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NarrativeAgent{
		retriever: retriever,
		provider:  provider,
		topK:      topK,
		logger:    logger.With(zap.String("agent", "narrative")),
	}
}

// Category implements Agent.
func (a *NarrativeAgent) Category() types.TaskCategory { return types.TaskNarrative }

// Handle implements Agent.
func (a *NarrativeAgent) Handle(ctx context.Context, sub types.SubQuery) (types.PartialAnswer, error) {
	candidates, err := a.retriever.Retrieve(ctx, sub.Question, sub.Filters, a.topK)
	if err != nil {
		return types.PartialAnswer{}, err
	}
	if len(candidates) == 0 {
		return noEvidence(sub, "no relevant narrative evidence retrieved", nil), nil
	}

	text, composed := "", false
	if a.provider != nil {
		text, err = a.compose(ctx, sub, candidates)
		if err != nil {
			a.logger.Warn("llm composition failed, falling back to extractive answer", zap.Error(err))
		} else {
			composed = true
		}
	}
	if !composed {
		text = extractiveAnswer(candidates)
	}
	if strings.TrimSpace(text) == "" {
		return noEvidence(sub, "retrieved evidence yielded no usable answer text", candidates), nil
	}

	confidence := meanScore(candidates)
	if !composed {
		// Extractive answers carry less synthesis, cap their confidence.
		confidence *= 0.8
	}

	return types.PartialAnswer{
		SubQueryID: sub.ID,
		Category:   sub.Category,
		Text:       text,
		ChunkIDs:   chunkIDs(candidates),
		Confidence: confidence,
	}, nil
}

func (a *NarrativeAgent) compose(ctx context.Context, sub types.SubQuery, candidates []types.RetrievalCandidate) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nExcerpts:\n", sub.Question)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] (%s, %s)\n%s\n\n", i+1, c.Chunk.Metadata.Statement, c.Chunk.PageRange(), c.Chunk.Content)
	}
	if sub.Instruction != "" {
		fmt.Fprintf(&b, "Instruction: %s\n", sub.Instruction)
	}

	resp, err := a.provider.Complete(ctx, &llm.CompletionRequest{
		System:      narrativeSystemPrompt,
		Prompt:      b.String(),
		Temperature: 0.2,
		MaxTokens:   600,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// extractiveAnswer stitches the leading sentences of the top chunks.
func extractiveAnswer(candidates []types.RetrievalCandidate) string {
	var parts []string
	for i, c := range candidates {
		if i == 3 {
			break
		}
		content := strings.TrimSpace(c.Chunk.Content)
		if idx := strings.Index(content, ". "); idx > 0 && idx < 300 {
			content = content[:idx+1]
		} else if len(content) > 300 {
			content = content[:300]
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, " ")
}

var _ Agent = (*NarrativeAgent)(nil)
