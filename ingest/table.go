package ingest

import (
	"strings"

	"github.com/finsightai/finsight/types"
)

// classifyTable infers the statement a table belongs to from its header row,
// falling back to scanning the whole grid.
func classifyTable(cells [][]string) types.StatementType {
	if len(cells) == 0 {
		return types.StatementUnknown
	}
	header := strings.ToLower(strings.Join(cells[0], " "))
	switch {
	case containsAny(header, "revenue", "income", "profit", "expense"):
		return types.StatementIncome
	case containsAny(header, "assets", "liabilities", "equity"):
		return types.StatementBalance
	case containsAny(header, "cash flow", "operating", "investing", "financing"):
		return types.StatementCashFlow
	}

	var all strings.Builder
	for _, row := range cells {
		all.WriteString(strings.ToLower(strings.Join(row, " ")))
		all.WriteByte(' ')
	}
	body := all.String()
	switch {
	case containsAny(body, "income statement", "profit and loss"):
		return types.StatementIncome
	case containsAny(body, "balance sheet", "financial position"):
		return types.StatementBalance
	case containsAny(body, "cash flow"):
		return types.StatementCashFlow
	}
	return types.StatementUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// tableToMarkdown renders a cell grid as a markdown table. The first row is
// rendered as the header.
func tableToMarkdown(cells [][]string) string {
	if len(cells) == 0 {
		return ""
	}
	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString(" |\n")
	}
	writeRow(cells[0])
	b.WriteString("|")
	b.WriteString(strings.Repeat("---|", len(cells[0])))
	b.WriteString("\n")
	for _, row := range cells[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitRowGroups partitions a table's data rows into groups whose rendered
// size (prefix and header included) stays at or below upper tokens. Rows are
// never split; the header row is duplicated into every group so each
// sub-chunk remains self-describing. A single row larger than the budget
// still gets its own group.
func splitRowGroups(cells [][]string, upper int, tok Tokenizer, prefix string) [][][]string {
	if len(cells) <= 1 {
		return [][][]string{cells}
	}
	header := cells[0]

	rendered := func(g [][]string) int {
		md := tableToMarkdown(g)
		if prefix != "" {
			md = prefix + "\n\n" + md
		}
		return tok.CountTokens(md)
	}

	var groups [][][]string
	group := [][]string{header}

	for _, row := range cells[1:] {
		next := append(append([][]string(nil), group...), row)
		if len(group) > 1 && rendered(next) > upper {
			groups = append(groups, group)
			group = [][]string{header, row}
			continue
		}
		group = next
	}
	if len(group) > 1 {
		groups = append(groups, group)
	}
	return groups
}
