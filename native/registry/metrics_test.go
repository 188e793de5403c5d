package registry

import "testing"

func TestApplyOutcomeSeededAverageDiscarded(t *testing.T) {
	// The seeded average carries weight zero while total is zero: the first
	// real sample replaces it entirely.
	p := Processor{AvgProcessingTime: 150}
	updated := ApplyOutcome(p, 500, true, 100, 1_700_000_000)
	if updated.AvgProcessingTime != 100 {
		t.Fatalf("expected avg 100, got %d", updated.AvgProcessingTime)
	}
	if updated.TotalTransactions != 1 {
		t.Fatalf("expected total 1, got %d", updated.TotalTransactions)
	}

	second := ApplyOutcome(updated, 500, true, 300, 1_700_000_100)
	if second.AvgProcessingTime != 200 {
		t.Fatalf("expected avg (100*1+300)/2 = 200, got %d", second.AvgProcessingTime)
	}
	if second.TotalTransactions != 2 {
		t.Fatalf("expected total 2, got %d", second.TotalTransactions)
	}
}

func TestApplyOutcomeCounters(t *testing.T) {
	p := Processor{
		TotalTransactions:      3,
		SuccessfulTransactions: 2,
		TotalAmount:            1_000,
		AvgProcessingTime:      90,
		MonthlyTransactions:    3,
		MonthlyAmount:          1_000,
	}
	updated := ApplyOutcome(p, 250, false, 60, 42)
	if updated.TotalTransactions != 4 {
		t.Fatalf("expected total 4, got %d", updated.TotalTransactions)
	}
	if updated.SuccessfulTransactions != 2 {
		t.Fatalf("failure must not bump successes, got %d", updated.SuccessfulTransactions)
	}
	if updated.TotalAmount != 1_250 {
		t.Fatalf("expected amount 1250, got %d", updated.TotalAmount)
	}
	if updated.AvgProcessingTime != (90*3+60)/4 {
		t.Fatalf("expected floor average %d, got %d", (90*3+60)/4, updated.AvgProcessingTime)
	}
	if updated.MonthlyTransactions != 4 || updated.MonthlyAmount != 1_250 {
		t.Fatalf("cumulative counters wrong: %d/%d", updated.MonthlyTransactions, updated.MonthlyAmount)
	}
	if updated.LastUpdated != 42 {
		t.Fatalf("expected lastUpdated 42, got %d", updated.LastUpdated)
	}
	if updated.SuccessfulTransactions > updated.TotalTransactions {
		t.Fatalf("invariant violated: %d > %d", updated.SuccessfulTransactions, updated.TotalTransactions)
	}
}

func TestApplyOutcomeDoesNotMutateInput(t *testing.T) {
	p := Processor{TotalTransactions: 1, AvgProcessingTime: 100}
	_ = ApplyOutcome(p, 1, true, 500, 1)
	if p.TotalTransactions != 1 || p.AvgProcessingTime != 100 {
		t.Fatalf("input record mutated: %+v", p)
	}
}
