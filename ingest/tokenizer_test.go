package ingest

import (
	"testing"

	"github.com/finsightai/finsight/types"
)

func TestEstimatorTokenizerMinimumOneToken(t *testing.T) {
	tok := EstimatorTokenizer{}
	if got := tok.CountTokens(""); got != 0 {
		t.Errorf("empty text should count 0 tokens, got %d", got)
	}
	if got := tok.CountTokens("ab"); got != 1 {
		t.Errorf("short nonempty text should count at least 1 token, got %d", got)
	}
	if got := tok.CountTokens("twelve chars"); got != 3 {
		t.Errorf("expected 3 tokens for 12 chars, got %d", got)
	}
}

func TestNewTiktokenTokenizerUnknownModel(t *testing.T) {
	_, err := NewTiktokenTokenizer("no-such-model", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown model")
	}
	if types.GetErrorCode(err) != types.ErrTokenizerError {
		t.Errorf("expected TOKENIZER_ERROR, got %s", types.GetErrorCode(err))
	}
}

func TestNewTokenizerFallsBackToEstimator(t *testing.T) {
	tok := NewTokenizer("no-such-model", nil)
	if _, ok := tok.(EstimatorTokenizer); !ok {
		t.Errorf("expected estimator fallback, got %T", tok)
	}
}
