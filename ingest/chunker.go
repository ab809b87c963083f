package ingest

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// chunkNamespace is the fixed UUIDv5 namespace for chunk ids. Ids are derived
// from document id, chunk sequence and content hash, so re-ingesting the same
// document reproduces the identical chunk set.
var chunkNamespace = uuid.MustParse("7f1c6f2e-98a3-45d1-9b6f-3a4fcb1d2e80")

// ChunkerConfig bounds chunk sizes in tokens.
type ChunkerConfig struct {
	LowerBound int `json:"lower_bound"`
	UpperBound int `json:"upper_bound"`
}

// DefaultChunkerConfig returns the production bounds.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{LowerBound: 200, UpperBound: 500}
}

// Chunker converts boundary-labeled extraction output into size-bounded,
// metadata-tagged chunks. A chunk never straddles a statement-change or
// table boundary; oversized tables split only along row groups.
type Chunker struct {
	cfg    ChunkerConfig
	tok    Tokenizer
	logger *zap.Logger
}

// NewChunker creates a chunker.
func NewChunker(cfg ChunkerConfig, tok Tokenizer, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{cfg: cfg, tok: tok, logger: logger.With(zap.String("component", "chunker"))}
}

// section is a run of content between hard boundaries. Either narrative
// (sentences) or tabular (one table), never both.
type section struct {
	statement   types.StatementType
	table       [][]string
	sentences   []sentenceUnit
	pageFirst   int
	pageLast    int
	boundaryIDs []string
}

type sentenceUnit struct {
	text string
	page int
}

func (s *section) empty() bool {
	return len(s.table) == 0 && len(s.sentences) == 0
}

// Chunk walks one document's pages linearly and emits its chunk sequence.
func (c *Chunker) Chunk(pages []types.ExtractedPage, boundaries []types.Boundary) []types.Chunk {
	if len(pages) == 0 {
		return nil
	}
	docID := pages[0].DocumentID

	sections := c.buildSections(pages, boundaries)

	var chunks []types.Chunk
	for _, sec := range sections {
		if sec.empty() {
			continue
		}
		if len(sec.table) > 0 {
			chunks = append(chunks, c.chunkTable(docID, sec)...)
		} else {
			chunks = append(chunks, c.chunkNarrative(docID, sec)...)
		}
	}

	chunks = c.mergeUndersized(chunks)

	for i := range chunks {
		chunks[i].ID = chunkID(docID, i, chunks[i].Content)
	}

	c.logger.Info("document chunked",
		zap.String("document_id", docID),
		zap.Int("sections", len(sections)),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// buildSections replays pages against the boundary sequence, closing the
// running section at every statement change and around every table.
func (c *Chunker) buildSections(pages []types.ExtractedPage, boundaries []types.Boundary) []*section {
	boundaryAt := make(map[types.Position][]types.Boundary)
	for _, b := range boundaries {
		boundaryAt[b.Pos] = append(boundaryAt[b.Pos], b)
	}

	var sections []*section
	current := types.StatementUnknown
	cur := &section{statement: current, pageFirst: pages[0].PageNumber, pageLast: pages[0].PageNumber}

	flush := func() {
		if !cur.empty() {
			sections = append(sections, cur)
		}
		cur = &section{statement: current, pageFirst: cur.pageLast, pageLast: cur.pageLast}
	}
	open := func(page int, carryIDs ...string) {
		cur = &section{statement: current, pageFirst: page, pageLast: page}
		cur.boundaryIDs = append(cur.boundaryIDs, carryIDs...)
	}

	// applyBoundaries handles every boundary at pos before the content there.
	// Detector ordering guarantees a statement change is applied before a
	// table-end at the same position.
	applyBoundaries := func(pos types.Position) {
		for _, b := range boundaryAt[pos] {
			switch b.Kind {
			case types.BoundaryStatementChange:
				if b.Statement != current {
					flush()
					current = b.Statement
					open(pos.Page, b.ID)
				}
			case types.BoundarySectionHeading, types.BoundaryPageBreak:
				cur.boundaryIDs = append(cur.boundaryIDs, b.ID)
			}
		}
	}

	for _, page := range pages {
		applyBoundaries(types.Position{Page: page.PageNumber, Offset: 0})

		events := make([]pageEvent, 0, len(page.Spans)+len(page.Tables))
		for i := range page.Spans {
			events = append(events, pageEvent{offset: page.Spans[i].Offset, span: &page.Spans[i]})
		}
		for i := range page.Tables {
			events = append(events, pageEvent{offset: page.Tables[i].StartOffset, table: &page.Tables[i]})
		}
		sort.Slice(events, func(i, j int) bool { return events[i].offset < events[j].offset })

		for _, ev := range events {
			pos := types.Position{Page: page.PageNumber, Offset: ev.offset}
			if ev.offset > 0 {
				applyBoundaries(pos)
			}

			if ev.span != nil {
				text := ev.span.Text
				base := ev.span.Offset

				// Boundaries inside the span split it into segments, so a
				// heading mid-span still closes the running section.
				var cuts []int
				seenCut := make(map[int]bool)
				for _, b := range boundaries {
					if b.Pos.Page != page.PageNumber || seenCut[b.Pos.Offset] {
						continue
					}
					if b.Kind != types.BoundaryStatementChange && b.Kind != types.BoundarySectionHeading {
						continue
					}
					if b.Pos.Offset > base && b.Pos.Offset < base+len(text) {
						seenCut[b.Pos.Offset] = true
						cuts = append(cuts, b.Pos.Offset)
					}
				}
				sort.Ints(cuts)

				addSegment := func(seg string) {
					for _, sent := range splitSentences(seg) {
						cur.sentences = append(cur.sentences, sentenceUnit{text: sent, page: page.PageNumber})
					}
					cur.pageLast = page.PageNumber
				}
				segStart := base
				for _, cut := range cuts {
					addSegment(text[segStart-base : cut-base])
					applyBoundaries(types.Position{Page: page.PageNumber, Offset: cut})
					segStart = cut
				}
				addSegment(text[segStart-base:])
				continue
			}

			// Table: close the narrative run, emit a dedicated tabular
			// section, then resume narrative in the same statement.
			flush()
			st := classifyTable(ev.table.Cells)
			if st == types.StatementUnknown {
				st = current
			}
			tsec := &section{
				statement: st,
				table:     ev.table.Cells,
				pageFirst: page.PageNumber,
				pageLast:  page.PageNumber,
			}
			startPos := pos
			endPos := types.Position{Page: page.PageNumber, Offset: ev.table.EndOffset}
			for _, b := range boundaryAt[startPos] {
				if b.Kind == types.BoundaryTableStart {
					tsec.boundaryIDs = append(tsec.boundaryIDs, b.ID)
				}
			}
			for _, b := range boundaryAt[endPos] {
				if b.Kind == types.BoundaryTableEnd {
					tsec.boundaryIDs = append(tsec.boundaryIDs, b.ID)
				}
			}
			sections = append(sections, tsec)
			applyBoundaries(endPos)
			open(page.PageNumber)
		}
	}
	flush()

	return sections
}

// pageEvent interleaves a page's narrative spans and table regions by offset.
type pageEvent struct {
	offset int
	span   *types.TextSpan
	table  *types.TableRegion
}

// chunkNarrative greedily accumulates sentences up to the upper bound,
// closing each chunk at a sentence end.
func (c *Chunker) chunkNarrative(docID string, sec *section) []types.Chunk {
	var chunks []types.Chunk

	var content strings.Builder
	pageFirst, pageLast := 0, 0

	emit := func() {
		text := strings.TrimSpace(content.String())
		if text == "" {
			return
		}
		chunks = append(chunks, c.newChunk(docID, text, types.ChunkNarrative, sec, pageFirst, pageLast))
		content.Reset()
	}

	for _, u := range sec.sentences {
		candidate := u.text
		if content.Len() > 0 {
			candidate = content.String() + " " + u.text
		}
		if content.Len() > 0 && c.tok.CountTokens(candidate) > c.cfg.UpperBound {
			emit()
			candidate = u.text
		}
		if content.Len() == 0 {
			pageFirst = u.page
		}
		pageLast = u.page
		content.Reset()
		content.WriteString(candidate)
	}
	emit()

	return chunks
}

// chunkTable emits one tabular chunk, or several split along row groups with
// the header row duplicated into each, when the table exceeds the bound.
func (c *Chunker) chunkTable(docID string, sec *section) []types.Chunk {
	title := fmt.Sprintf("## FINANCIAL TABLE: %s", statementTitle(sec.statement))
	groups := splitRowGroups(sec.table, c.cfg.UpperBound, c.tok, title)
	chunks := make([]types.Chunk, 0, len(groups))
	for _, group := range groups {
		content := title + "\n\n" + tableToMarkdown(group)
		chunks = append(chunks, c.newChunk(docID, content, types.ChunkTabular, sec, sec.pageFirst, sec.pageLast))
	}
	return chunks
}

func (c *Chunker) newChunk(docID, content string, kind types.ChunkKind, sec *section, pageFirst, pageLast int) types.Chunk {
	return types.Chunk{
		DocumentID: docID,
		Content:    content,
		Kind:       kind,
		TokenCount: c.tok.CountTokens(content),
		Metadata: types.ChunkMetadata{
			DocumentID:  docID,
			Periods:     types.ParsePeriods(content),
			Statement:   sec.statement,
			PageFirst:   pageFirst,
			PageLast:    pageLast,
			BoundaryIDs: append([]string(nil), sec.boundaryIDs...),
		},
	}
}

// mergeUndersized folds each chunk below the lower bound into its successor,
// unless that would cross a statement change or push the combined size past
// the upper bound, in which case the chunk stays short.
func (c *Chunker) mergeUndersized(chunks []types.Chunk) []types.Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	out := make([]types.Chunk, 0, len(chunks))
	var pending *types.Chunk

	for i := range chunks {
		ch := chunks[i]
		if pending != nil {
			merged := false
			if pending.Metadata.Statement == ch.Metadata.Statement {
				if m := mergeInto(*pending, ch, c.tok); m.TokenCount <= c.cfg.UpperBound {
					ch = m
					merged = true
				}
			}
			if !merged {
				out = append(out, *pending)
			}
			pending = nil
		}
		if ch.TokenCount < c.cfg.LowerBound && i < len(chunks)-1 {
			p := ch
			pending = &p
			continue
		}
		out = append(out, ch)
	}
	if pending != nil {
		out = append(out, *pending)
	}
	return out
}

// mergeInto prepends a short chunk onto its successor and combines metadata.
func mergeInto(small, next types.Chunk, tok Tokenizer) types.Chunk {
	merged := next
	merged.Content = small.Content + "\n\n" + next.Content
	merged.TokenCount = tok.CountTokens(merged.Content)
	if small.Kind != next.Kind {
		merged.Kind = types.ChunkMixed
	}
	if small.Metadata.PageFirst < merged.Metadata.PageFirst {
		merged.Metadata.PageFirst = small.Metadata.PageFirst
	}
	if small.Metadata.PageLast > merged.Metadata.PageLast {
		merged.Metadata.PageLast = small.Metadata.PageLast
	}
	merged.Metadata.BoundaryIDs = append(append([]string(nil), small.Metadata.BoundaryIDs...), next.Metadata.BoundaryIDs...)
	merged.Metadata.Periods = mergePeriods(small.Metadata.Periods, next.Metadata.Periods)
	return merged
}

func mergePeriods(a, b []types.FiscalPeriod) []types.FiscalPeriod {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]types.FiscalPeriod, 0, len(a)+len(b))
	for _, p := range append(append([]types.FiscalPeriod(nil), a...), b...) {
		if !seen[p.String()] {
			seen[p.String()] = true
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks narrative text at sentence enders, never mid-sentence.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	for _, r := range text {
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?', '\n':
			flush()
		}
	}
	flush()
	return sentences
}

func statementTitle(st types.StatementType) string {
	words := strings.Split(string(st), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func chunkID(docID string, seq int, content string) string {
	h := sha256.Sum256([]byte(content))
	name := fmt.Sprintf("%s/%04d/%x", docID, seq, h[:8])
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
