package types

import "testing"

func TestRetrievalFiltersMatchStatement(t *testing.T) {
	f := RetrievalFilters{Statement: StatementIncome}

	if !f.Match(ChunkMetadata{Statement: StatementIncome}, ChunkNarrative) {
		t.Error("matching statement should pass")
	}
	if f.Match(ChunkMetadata{Statement: StatementBalance}, ChunkNarrative) {
		t.Error("different statement should fail")
	}
}

func TestRetrievalFiltersMatchPeriodRange(t *testing.T) {
	from := FiscalPeriod{Year: 2022, Quarter: Q1}
	to := FiscalPeriod{Year: 2022, Quarter: Q4}
	f := RetrievalFilters{PeriodFrom: &from, PeriodTo: &to}

	inRange := ChunkMetadata{Periods: []FiscalPeriod{{Year: 2022, Quarter: Q3}}}
	if !f.Match(inRange, ChunkNarrative) {
		t.Error("period inside range should pass")
	}

	outOfRange := ChunkMetadata{Periods: []FiscalPeriod{{Year: 2020, Quarter: Q1}}}
	if f.Match(outOfRange, ChunkNarrative) {
		t.Error("period outside range should fail")
	}
}

func TestRetrievalFiltersPeriodlessChunkPasses(t *testing.T) {
	from := FiscalPeriod{Year: 2022, Quarter: Q1}
	f := RetrievalFilters{PeriodFrom: &from}

	if !f.Match(ChunkMetadata{}, ChunkNarrative) {
		t.Error("chunk without period metadata should pass period filters")
	}
}

func TestRetrievalFiltersMixedKindPasses(t *testing.T) {
	f := RetrievalFilters{Kind: ChunkTabular}
	if !f.Match(ChunkMetadata{}, ChunkMixed) {
		t.Error("mixed chunks should satisfy a kind filter")
	}
	if f.Match(ChunkMetadata{}, ChunkNarrative) {
		t.Error("narrative chunk should fail a tabular filter")
	}
}

func TestRelaxedWidensPeriodRange(t *testing.T) {
	from := FiscalPeriod{Year: 2022, Quarter: Q1}
	to := FiscalPeriod{Year: 2022, Quarter: Q4}
	f := RetrievalFilters{PeriodFrom: &from, PeriodTo: &to, Statement: StatementIncome, Kind: ChunkTabular}

	r1 := f.Relaxed(1)
	if r1.PeriodFrom.Year != 2021 || r1.PeriodTo.Year != 2023 {
		t.Errorf("attempt 1 should widen range by a year, got %s..%s", r1.PeriodFrom, r1.PeriodTo)
	}
	if r1.Statement != StatementIncome || r1.Kind != ChunkTabular {
		t.Error("attempt 1 should keep statement and kind filters")
	}

	r2 := f.Relaxed(2)
	if r2.Statement != "" || r2.Kind != "" {
		t.Error("attempt 2 should drop statement and kind filters")
	}
	if r2.PeriodFrom.Year != 2020 || r2.PeriodTo.Year != 2024 {
		t.Errorf("attempt 2 should widen range by two years, got %s..%s", r2.PeriodFrom, r2.PeriodTo)
	}
}

func TestRelaxedDoesNotMutateOriginal(t *testing.T) {
	from := FiscalPeriod{Year: 2022, Quarter: Q1}
	f := RetrievalFilters{PeriodFrom: &from, Statement: StatementIncome}

	_ = f.Relaxed(2)
	if f.PeriodFrom.Year != 2022 || f.Statement != StatementIncome {
		t.Error("Relaxed must not mutate the receiver")
	}
}

func TestBoundaryIsHard(t *testing.T) {
	hard := []BoundaryKind{BoundaryStatementChange, BoundaryTableStart, BoundaryTableEnd}
	for _, k := range hard {
		if !(Boundary{Kind: k}).IsHard() {
			t.Errorf("%s should be hard", k)
		}
	}
	soft := []BoundaryKind{BoundarySectionHeading, BoundaryPageBreak}
	for _, k := range soft {
		if (Boundary{Kind: k}).IsHard() {
			t.Errorf("%s should be soft", k)
		}
	}
}
