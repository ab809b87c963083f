package types

import "fmt"

// StatementType identifies the financial statement a piece of content
// belongs to.
type StatementType string

const (
	StatementIncome     StatementType = "income_statement"
	StatementBalance    StatementType = "balance_sheet"
	StatementCashFlow   StatementType = "cash_flow"
	StatementNotes      StatementType = "notes"
	StatementRisk       StatementType = "risk_management"
	StatementCommentary StatementType = "management_commentary"
	StatementUnknown    StatementType = "unknown"
)

// TextSpan is a run of narrative text at a character offset within a page.
type TextSpan struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

// TableRegion is one extracted table. Cells[0] is the header row when the
// extraction engine identified one.
type TableRegion struct {
	StartOffset int        `json:"start_offset"`
	EndOffset   int        `json:"end_offset"`
	Cells       [][]string `json:"cells"`
}

// RowCount returns the number of rows including the header.
func (t TableRegion) RowCount() int {
	return len(t.Cells)
}

// HeaderRow returns the first row, or nil for an empty table.
func (t TableRegion) HeaderRow() []string {
	if len(t.Cells) == 0 {
		return nil
	}
	return t.Cells[0]
}

// ExtractedPage is the merged extraction output for one page: ordered
// narrative spans plus any table regions, all offsets page-local.
type ExtractedPage struct {
	DocumentID string        `json:"document_id"`
	PageNumber int           `json:"page_number"`
	Spans      []TextSpan    `json:"spans"`
	Tables     []TableRegion `json:"tables"`
}

// BoundaryKind labels what kind of structural transition a boundary marks.
type BoundaryKind string

const (
	BoundaryStatementChange BoundaryKind = "statement-change"
	BoundaryTableStart      BoundaryKind = "table-start"
	BoundaryTableEnd        BoundaryKind = "table-end"
	BoundarySectionHeading  BoundaryKind = "section-heading"
	BoundaryPageBreak       BoundaryKind = "page-break"
)

// Position locates a boundary within a document.
type Position struct {
	Page   int `json:"page"`
	Offset int `json:"offset"`
}

// Before reports strict (page, offset) ordering.
func (p Position) Before(other Position) bool {
	if p.Page != other.Page {
		return p.Page < other.Page
	}
	return p.Offset < other.Offset
}

// Boundary is one structural transition. Boundaries for a document form a
// strictly ordered sequence by (page, offset).
type Boundary struct {
	ID        string        `json:"id"`
	Kind      BoundaryKind  `json:"kind"`
	Pos       Position      `json:"pos"`
	Statement StatementType `json:"statement,omitempty"` // set for statement-change and section-heading
	TableIdx  int           `json:"table_idx,omitempty"` // page-local index for table boundaries
}

// IsHard reports whether a chunk may never straddle this boundary.
func (b Boundary) IsHard() bool {
	switch b.Kind {
	case BoundaryStatementChange, BoundaryTableStart, BoundaryTableEnd:
		return true
	default:
		return false
	}
}

// ChunkKind distinguishes chunk content shape.
type ChunkKind string

const (
	ChunkNarrative ChunkKind = "narrative"
	ChunkTabular   ChunkKind = "tabular"
	ChunkMixed     ChunkKind = "mixed"
)

// ChunkMetadata carries the retrieval-facing attributes of a chunk.
type ChunkMetadata struct {
	DocumentID  string         `json:"document_id"`
	Periods     []FiscalPeriod `json:"periods,omitempty"`
	Statement   StatementType  `json:"statement"`
	PageFirst   int            `json:"page_first"`
	PageLast    int            `json:"page_last"`
	BoundaryIDs []string       `json:"boundary_ids,omitempty"`
}

// Chunk is one boundary-respecting, size-bounded unit of indexed content.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Content    string        `json:"content"`
	Kind       ChunkKind     `json:"kind"`
	Metadata   ChunkMetadata `json:"metadata"`
	TokenCount int           `json:"token_count"`
}

// PageRange renders the chunk's page span for citations.
func (c Chunk) PageRange() string {
	if c.Metadata.PageFirst == c.Metadata.PageLast {
		return fmt.Sprintf("p%d", c.Metadata.PageFirst)
	}
	return fmt.Sprintf("p%d-p%d", c.Metadata.PageFirst, c.Metadata.PageLast)
}
