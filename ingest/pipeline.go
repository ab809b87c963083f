package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finsightai/finsight/types"
)

// ChunkSink receives the chunk set for a document. Replace semantics: the
// sink drops any previously stored chunks for the document before adding the
// new set, so re-ingestion converges on the same stored state.
type ChunkSink interface {
	ReplaceDocument(ctx context.Context, documentID string, chunks []types.Chunk) error
}

// Document is one extraction result handed to the pipeline.
type Document struct {
	ID    string
	Pages []types.ExtractedPage
}

// PipelineResult summarizes one document's ingestion.
type PipelineResult struct {
	DocumentID    string
	ChunkCount    int
	BoundaryCount int
	Err           error
}

// Pipeline runs boundary detection, chunking, sink replacement and ledger
// recording per document, with documents processed concurrently.
type Pipeline struct {
	detector *BoundaryDetector
	chunker  *Chunker
	sink     ChunkSink
	ledger   *Ledger
	tokName  string
	parallel int
	logger   *zap.Logger
}

// NewPipeline wires the ingestion stages together. ledger may be nil when no
// persistence of ingestion history is wanted.
func NewPipeline(detector *BoundaryDetector, chunker *Chunker, sink ChunkSink, ledger *Ledger, tokenizerName string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		detector: detector,
		chunker:  chunker,
		sink:     sink,
		ledger:   ledger,
		tokName:  tokenizerName,
		parallel: 4,
		logger:   logger.With(zap.String("component", "pipeline")),
	}
}

// WithParallelism caps how many documents are processed at once.
func (p *Pipeline) WithParallelism(n int) *Pipeline {
	if n > 0 {
		p.parallel = n
	}
	return p
}

// IngestAll processes documents concurrently. One document's failure does not
// abort the others; each result carries its own error.
func (p *Pipeline) IngestAll(ctx context.Context, docs []Document) []PipelineResult {
	results := make([]PipelineResult, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = p.Ingest(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Ingest processes a single document end to end.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) PipelineResult {
	res := PipelineResult{DocumentID: doc.ID}

	if len(doc.Pages) == 0 || !hasContent(doc.Pages) {
		res.Err = types.NewError(types.ErrEmptyDocument, "document has no extractable content")
		p.logger.Warn("empty document rejected", zap.String("document_id", doc.ID))
		return res
	}
	if err := pageGap(doc.Pages); err != nil {
		res.Err = err
		p.logger.Warn("document with extraction gap rejected",
			zap.String("document_id", doc.ID), zap.Error(err))
		return res
	}

	boundaries := p.detector.Detect(doc.Pages)
	res.BoundaryCount = len(boundaries)

	chunks := p.chunker.Chunk(doc.Pages, boundaries)
	res.ChunkCount = len(chunks)

	if p.sink != nil {
		if err := p.sink.ReplaceDocument(ctx, doc.ID, chunks); err != nil {
			res.Err = types.NewError(types.ErrCollaboratorUnavailable, "failed to store chunks").
				WithCause(err).WithRetryable(true)
			return res
		}
	}

	if p.ledger != nil {
		rec := IngestionRecord{
			DocumentID:    doc.ID,
			ChunkCount:    len(chunks),
			BoundaryCount: len(boundaries),
			TokenizerName: p.tokName,
		}
		if err := p.ledger.Record(ctx, rec); err != nil {
			res.Err = err
			return res
		}
	}

	p.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("boundaries", len(boundaries)),
		zap.Int("chunks", len(chunks)))
	return res
}

// pageGap rejects page sequences with missing pages: chunking a document
// around a hole silently misattributes statement ranges.
func pageGap(pages []types.ExtractedPage) error {
	for i := 1; i < len(pages); i++ {
		prev, cur := pages[i-1].PageNumber, pages[i].PageNumber
		if cur != prev+1 {
			return types.NewError(types.ErrExtractionGap,
				fmt.Sprintf("page sequence jumps from %d to %d", prev, cur))
		}
	}
	return nil
}

func hasContent(pages []types.ExtractedPage) bool {
	for _, page := range pages {
		for _, span := range page.Spans {
			if len(span.Text) > 0 {
				return true
			}
		}
		if len(page.Tables) > 0 {
			return true
		}
	}
	return false
}
