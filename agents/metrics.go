package agents

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/finsightai/finsight/types"
)

// Metric is a canonical financial metric key.
type Metric string

const (
	MetricNetProfit         Metric = "net_profit"
	MetricEquity            Metric = "shareholder_equity"
	MetricTotalAssets       Metric = "total_assets"
	MetricTotalLoans        Metric = "total_loans"
	MetricTotalDeposits     Metric = "total_deposits"
	MetricNetInterestIncome Metric = "net_interest_income"
	MetricEarningAssets     Metric = "earning_assets"
	MetricRevenue           Metric = "revenue"
)

// metricAliases maps each metric to the phrases that name it in statements
// and questions. Longer aliases are listed first so extraction prefers them.
var metricAliases = map[Metric][]string{
	MetricNetProfit:         {"net profit for the period", "profit for the period", "profit for the year", "profit after tax", "net profit", "net income"},
	MetricEquity:            {"total shareholders' equity", "shareholders' equity", "shareholder equity", "total equity"},
	MetricTotalAssets:       {"total assets"},
	MetricTotalLoans:        {"loans and advances to customers", "loans and advances", "total loans", "gross loans"},
	MetricTotalDeposits:     {"customer accounts and other deposits", "customer deposits", "total deposits"},
	MetricNetInterestIncome: {"net interest income"},
	MetricEarningAssets:     {"interest earning assets", "earning assets"},
	MetricRevenue:           {"operating income", "total revenue", "revenue"},
}

// metricOrder fixes scan order so multi-metric questions resolve the same
// way on every run.
var metricOrder = []Metric{
	MetricNetProfit, MetricEquity, MetricTotalAssets, MetricTotalLoans,
	MetricTotalDeposits, MetricNetInterestIncome, MetricEarningAssets, MetricRevenue,
}

// DetectMetrics returns the metrics a question mentions.
func DetectMetrics(question string) []Metric {
	q := strings.ToLower(question)
	var out []Metric
	seen := make(map[Metric]bool)
	for _, metric := range metricOrder {
		for _, alias := range metricAliases[metric] {
			if strings.Contains(q, alias) {
				if !seen[metric] {
					seen[metric] = true
					out = append(out, metric)
				}
				break
			}
		}
	}
	return out
}

// DisplayName renders a metric for answer text.
func (m Metric) DisplayName() string {
	return strings.ReplaceAll(string(m), "_", " ")
}

// Query renders the retrieval query text for a metric.
func (m Metric) Query() string {
	if aliases, ok := metricAliases[m]; ok && len(aliases) > 0 {
		return aliases[len(aliases)-1]
	}
	return m.DisplayName()
}

var numberRe = regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*(billion|bn|million|mn|'000)?`)

// ExtractedValue is one metric occurrence found in chunk text, normalized
// to millions.
type ExtractedValue struct {
	Metric  Metric
	Value   float64
	ChunkID string
	Period  *types.FiscalPeriod
}

// ExtractMetric scans candidate chunks for a metric's value. The first
// number within a short window after an alias mention wins; values in
// billions are normalized to millions. Returns false when no candidate
// chunk yields a parseable value.
func ExtractMetric(metric Metric, candidates []types.RetrievalCandidate) (ExtractedValue, bool) {
	aliases := metricAliases[metric]
	for _, cand := range candidates {
		lower := strings.ToLower(cand.Chunk.Content)
		for _, alias := range aliases {
			idx := strings.Index(lower, alias)
			if idx < 0 {
				continue
			}
			window := cand.Chunk.Content[idx+len(alias):]
			if len(window) > 120 {
				window = window[:120]
			}
			m := numberRe.FindStringSubmatch(window)
			if m == nil {
				continue
			}
			raw := strings.ReplaceAll(m[1], ",", "")
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v == 0 {
				continue
			}
			switch m[2] {
			case "billion", "bn":
				v *= 1000
			case "'000":
				v /= 1000
			}
			ev := ExtractedValue{Metric: metric, Value: v, ChunkID: cand.Chunk.ID}
			if len(cand.Chunk.Metadata.Periods) > 0 {
				p := cand.Chunk.Metadata.Periods[len(cand.Chunk.Metadata.Periods)-1]
				ev.Period = &p
			}
			return ev, true
		}
	}
	return ExtractedValue{}, false
}
