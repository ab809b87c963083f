package agents

import (
	"context"
	"strings"
	"sync"

	"github.com/finsightai/finsight/types"
)

// fakeRetriever serves canned candidates keyed by a substring of the query
// and records every call for assertions.
type fakeRetriever struct {
	mu      sync.Mutex
	routes  map[string][]types.RetrievalCandidate
	fallbak []types.RetrievalCandidate
	err     error

	calls []retrieveCall
}

type retrieveCall struct {
	query   string
	filters types.RetrievalFilters
	topK    int
}

func newFakeRetriever() *fakeRetriever {
	return &fakeRetriever{routes: make(map[string][]types.RetrievalCandidate)}
}

func (f *fakeRetriever) on(substr string, cands ...types.RetrievalCandidate) *fakeRetriever {
	f.routes[substr] = cands
	return f
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, filters types.RetrievalFilters, topK int) ([]types.RetrievalCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, retrieveCall{query: query, filters: filters, topK: topK})
	if f.err != nil {
		return nil, f.err
	}
	for substr, cands := range f.routes {
		if strings.Contains(query, substr) {
			if matched := filterCands(cands, filters); matched != nil {
				return matched, nil
			}
		}
	}
	return filterCands(f.fallbak, filters), nil
}

func filterCands(cands []types.RetrievalCandidate, filters types.RetrievalFilters) []types.RetrievalCandidate {
	var out []types.RetrievalCandidate
	for _, c := range cands {
		if filters.Match(c.Chunk.Metadata, c.Chunk.Kind) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRetriever) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
