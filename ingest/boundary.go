package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// statementLexicon maps lexical heading cues to statement types. Patterns are
// matched case-insensitively against individual lines of page text.
var statementLexicon = []struct {
	statement types.StatementType
	patterns  []*regexp.Regexp
}{
	{types.StatementIncome, compileAll(
		`income statement`,
		`profit and loss`,
		`statement of comprehensive income`,
		`consolidated income statement`,
	)},
	{types.StatementBalance, compileAll(
		`balance sheet`,
		`statement of financial position`,
		`consolidated balance sheet`,
	)},
	{types.StatementCashFlow, compileAll(
		`cash flow statement`,
		`statement of cash flows`,
		`consolidated cash flow`,
	)},
	{types.StatementRisk, compileAll(
		`risk management`,
		`risk factors`,
		`credit risk`,
		`market risk`,
		`operational risk`,
	)},
	{types.StatementCommentary, compileAll(
		`management discussion`,
		`executive summary`,
		`financial review`,
		`chief executive`,
		`board of directors`,
	)},
	{types.StatementNotes, compileAll(
		`notes to the financial`,
		`accounting policies`,
		`significant accounting`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// BoundaryDetector labels structural transitions in merged extraction output.
type BoundaryDetector struct {
	logger *zap.Logger
}

// NewBoundaryDetector creates a detector.
func NewBoundaryDetector(logger *zap.Logger) *BoundaryDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoundaryDetector{logger: logger.With(zap.String("component", "boundary_detector"))}
}

// Detect scans the ordered pages of one document and returns the ordered
// boundary sequence. Detection fails softly: a document with no lexical or
// table cues yields page-break boundaries only, never an error.
func (d *BoundaryDetector) Detect(pages []types.ExtractedPage) []types.Boundary {
	if len(pages) == 0 {
		return nil
	}
	docID := pages[0].DocumentID

	var boundaries []types.Boundary
	current := types.StatementUnknown
	cues := 0

	for pi, page := range pages {
		if pi > 0 {
			boundaries = append(boundaries, types.Boundary{
				Kind: types.BoundaryPageBreak,
				Pos:  types.Position{Page: page.PageNumber, Offset: 0},
			})
		}

		for _, span := range page.Spans {
			lineStart := 0
			for _, line := range strings.Split(span.Text, "\n") {
				st, heading := classifyLine(line)
				if st != types.StatementUnknown {
					cues++
					pos := types.Position{Page: page.PageNumber, Offset: span.Offset + lineStart}
					if st != current {
						boundaries = append(boundaries, types.Boundary{
							Kind:      types.BoundaryStatementChange,
							Pos:       pos,
							Statement: st,
						})
						current = st
					} else if heading {
						boundaries = append(boundaries, types.Boundary{
							Kind:      types.BoundarySectionHeading,
							Pos:       pos,
							Statement: st,
						})
					}
				}
				lineStart += len(line) + 1
			}
		}

		for ti, table := range page.Tables {
			boundaries = append(boundaries, types.Boundary{
				Kind:     types.BoundaryTableStart,
				Pos:      types.Position{Page: page.PageNumber, Offset: table.StartOffset},
				TableIdx: ti,
			})
			boundaries = append(boundaries, types.Boundary{
				Kind:     types.BoundaryTableEnd,
				Pos:      types.Position{Page: page.PageNumber, Offset: table.EndOffset},
				TableIdx: ti,
			})
			cues++
		}
	}

	sortBoundaries(boundaries)
	dedupeAdjacent(&boundaries)
	for i := range boundaries {
		boundaries[i].ID = fmt.Sprintf("%s-b%03d", docID, i)
	}

	if cues == 0 {
		d.logger.Warn("no structural cues detected, degrading to page breaks only",
			zap.String("document_id", docID),
			zap.Int("pages", len(pages)))
	} else {
		d.logger.Info("boundaries detected",
			zap.String("document_id", docID),
			zap.Int("boundaries", len(boundaries)),
			zap.Int("cues", cues))
	}

	return boundaries
}

// classifyLine matches one line against the statement lexicon. The second
// return value reports whether the line looks like a standalone heading
// rather than a passing mention.
func classifyLine(line string) (types.StatementType, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return types.StatementUnknown, false
	}
	for _, entry := range statementLexicon {
		for _, re := range entry.patterns {
			if re.MatchString(trimmed) {
				return entry.statement, len(strings.Fields(trimmed)) <= 8
			}
		}
	}
	return types.StatementUnknown, false
}

// sortBoundaries orders by (page, offset). At equal positions a
// statement-change sorts before a table-end: splits take priority over
// continuing a table.
func sortBoundaries(bs []types.Boundary) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Pos != bs[j].Pos {
			return bs[i].Pos.Before(bs[j].Pos)
		}
		return kindRank(bs[i].Kind) < kindRank(bs[j].Kind)
	})
}

func kindRank(k types.BoundaryKind) int {
	switch k {
	case types.BoundaryStatementChange:
		return 0
	case types.BoundaryPageBreak:
		return 1
	case types.BoundarySectionHeading:
		return 2
	case types.BoundaryTableEnd:
		return 3
	case types.BoundaryTableStart:
		return 4
	default:
		return 5
	}
}

// dedupeAdjacent removes exact duplicates that merged extraction engines can
// produce at the same position.
func dedupeAdjacent(bs *[]types.Boundary) {
	in := *bs
	if len(in) < 2 {
		return
	}
	out := in[:1]
	for _, b := range in[1:] {
		last := out[len(out)-1]
		if b.Kind == last.Kind && b.Pos == last.Pos && b.Statement == last.Statement && b.TableIdx == last.TableIdx {
			continue
		}
		out = append(out, b)
	}
	*bs = out
}
