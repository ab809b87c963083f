package types

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Quarter is a fiscal quarter, or QAnnual for full-year figures.
type Quarter string

const (
	Q1      Quarter = "Q1"
	Q2      Quarter = "Q2"
	Q3      Quarter = "Q3"
	Q4      Quarter = "Q4"
	QAnnual Quarter = "Annual"
)

// FiscalPeriod is a reporting period, e.g. Q3 2022 or full-year 2021.
type FiscalPeriod struct {
	Year    int     `json:"year"`
	Quarter Quarter `json:"quarter"`
}

// String renders the canonical form used in metadata and cache keys,
// e.g. "2022_Q3" or "2021_Annual".
func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%d_%s", p.Year, p.Quarter)
}

// ordinal maps a period to a comparable integer. Annual sorts after Q4 of
// the same year.
func (p FiscalPeriod) ordinal() int {
	q := 5
	switch p.Quarter {
	case Q1:
		q = 1
	case Q2:
		q = 2
	case Q3:
		q = 3
	case Q4:
		q = 4
	}
	return p.Year*8 + q
}

// Before reports strict chronological ordering.
func (p FiscalPeriod) Before(other FiscalPeriod) bool {
	return p.ordinal() < other.ordinal()
}

// Compare returns -1, 0 or 1 in chronological order.
func (p FiscalPeriod) Compare(other FiscalPeriod) int {
	a, b := p.ordinal(), other.ordinal()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Previous returns the immediately preceding period. For quarters that is
// the prior quarter, wrapping years; for annual periods the prior year.
func (p FiscalPeriod) Previous() FiscalPeriod {
	switch p.Quarter {
	case Q1:
		return FiscalPeriod{Year: p.Year - 1, Quarter: Q4}
	case Q2:
		return FiscalPeriod{Year: p.Year, Quarter: Q1}
	case Q3:
		return FiscalPeriod{Year: p.Year, Quarter: Q2}
	case Q4:
		return FiscalPeriod{Year: p.Year, Quarter: Q3}
	default:
		return FiscalPeriod{Year: p.Year - 1, Quarter: QAnnual}
	}
}

// YearAgo returns the same quarter one year earlier.
func (p FiscalPeriod) YearAgo() FiscalPeriod {
	return FiscalPeriod{Year: p.Year - 1, Quarter: p.Quarter}
}

var (
	quarterYearRe = regexp.MustCompile(`(?i)\b(Q[1-4])\s*[ -]?\s*(\d{4})\b`)
	yearQuarterRe = regexp.MustCompile(`(?i)\b(\d{4})\s*[ -]?\s*(Q[1-4])\b`)
	annualRe      = regexp.MustCompile(`(?i)\b(?:FY|fiscal year|full[ -]year|annual report)\s*(\d{4})\b`)
	bareYearRe    = regexp.MustCompile(`\b(20\d{2}|19\d{2})\b`)
)

// ParsePeriods extracts every fiscal period mentioned in text, deduplicated
// and sorted chronologically. A bare year with no quarter context parses as
// an annual period; years already claimed by a quarter match are not
// double-counted.
func ParsePeriods(text string) []FiscalPeriod {
	seen := make(map[FiscalPeriod]bool)
	claimedYears := make(map[int]bool)
	var out []FiscalPeriod

	add := func(p FiscalPeriod) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, m := range quarterYearRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[2])
		add(FiscalPeriod{Year: year, Quarter: Quarter(strings.ToUpper(m[1]))})
		claimedYears[year] = true
	}
	for _, m := range yearQuarterRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		add(FiscalPeriod{Year: year, Quarter: Quarter(strings.ToUpper(m[2]))})
		claimedYears[year] = true
	}
	for _, m := range annualRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		add(FiscalPeriod{Year: year, Quarter: QAnnual})
		claimedYears[year] = true
	}
	for _, m := range bareYearRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		if !claimedYears[year] {
			add(FiscalPeriod{Year: year, Quarter: QAnnual})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
