package ingest

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// Tokenizer counts tokens for chunk sizing.
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer counts tokens with a tiktoken encoding. Falls back to a
// character estimate if encoding fails mid-stream.
type TiktokenTokenizer struct {
	enc    *tiktoken.Tiktoken
	logger *zap.Logger
}

// NewTiktokenTokenizer creates a tokenizer for the given model
// (e.g. "gpt-4o", "gpt-4", "gpt-3.5-turbo").
func NewTiktokenTokenizer(model string, logger *zap.Logger) (*TiktokenTokenizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, types.NewError(types.ErrTokenizerError,
			fmt.Sprintf("create tiktoken encoding for %q", model)).WithCause(err)
	}
	return &TiktokenTokenizer{enc: enc, logger: logger}, nil
}

// CountTokens returns the token count of text.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// EstimatorTokenizer approximates tokens as len(text)/4. Used when the
// tiktoken encoding data is unavailable, and in tests.
type EstimatorTokenizer struct{}

// CountTokens returns the estimated token count of text.
func (EstimatorTokenizer) CountTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// NewTokenizer returns a tiktoken-backed tokenizer, degrading to the
// estimator when encoding data cannot be loaded (for example, offline).
func NewTokenizer(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	tok, err := NewTiktokenTokenizer(model, logger)
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to estimator",
			zap.String("model", model),
			zap.Error(err))
		return EstimatorTokenizer{}
	}
	return tok
}
