package registry

import "testing"

func TestScoreWorkedExample(t *testing.T) {
	// One successful transaction at 120ms, activated today: success rate
	// 10000 bps, volume 1, speed bracket 600, tenure 0.
	p := Processor{
		TotalTransactions:      1,
		SuccessfulTransactions: 1,
		MonthlyTransactions:    1,
		AvgProcessingTime:      120,
		FirstActivated:         1_700_000_000,
	}
	got := Score(p, 1_700_000_000)
	want := uint64((10000*40 + 1*25 + 600*20 + 0*15) / 100)
	if want != 4120 {
		t.Fatalf("worked example drifted: %d", want)
	}
	if got != want {
		t.Fatalf("expected score %d, got %d", want, got)
	}
}

func TestScoreUnseededDefaultRate(t *testing.T) {
	p := Processor{AvgProcessingTime: 150, FirstActivated: 1_700_000_000}
	// 9500*40 + 0*25 + 600*20 + 0*15 = 392000 -> 3920
	if got := Score(p, 1_700_000_000); got != 3920 {
		t.Fatalf("expected default-rate score 3920, got %d", got)
	}
}

func TestScoreSpeedBrackets(t *testing.T) {
	cases := []struct {
		avgMS uint64
		want  uint64
	}{
		{0, 1000},
		{49, 1000},
		{50, 800},
		{99, 800},
		{100, 600},
		{199, 600},
		{200, 400},
		{499, 400},
		{500, 200},
		{10_000, 200},
	}
	for _, tc := range cases {
		if got := speedScore(tc.avgMS); got != tc.want {
			t.Fatalf("speedScore(%d): expected %d, got %d", tc.avgMS, tc.want, got)
		}
	}
}

func TestScoreTenureAndVolumeCaps(t *testing.T) {
	activated := uint64(1_000_000_000)
	p := Processor{
		TotalTransactions:      10,
		SuccessfulTransactions: 10,
		MonthlyTransactions:    5_000,
		AvgProcessingTime:      40,
		FirstActivated:         activated,
	}
	// Two years later: tenure caps at 365 days, volume at 1000.
	now := activated + 2*365*86400
	want := uint64((10000*40 + 1000*25 + 1000*20 + 365*15) / 100)
	if got := Score(p, now); got != want {
		t.Fatalf("expected capped score %d, got %d", want, got)
	}
	if want != 4504 {
		t.Fatalf("cap example drifted: %d", want)
	}
}

func TestScoreClockBeforeActivation(t *testing.T) {
	p := Processor{FirstActivated: 2_000_000_000, AvgProcessingTime: 150}
	if got, want := Score(p, 1_000_000_000), Score(p, 2_000_000_000); got != want {
		t.Fatalf("tenure must clamp to zero before activation: %d vs %d", got, want)
	}
}

func TestScoreIsPure(t *testing.T) {
	p := Processor{
		TotalTransactions:      7,
		SuccessfulTransactions: 5,
		MonthlyTransactions:    42,
		AvgProcessingTime:      180,
		FirstActivated:         1_600_000_000,
	}
	now := uint64(1_650_000_000)
	first := Score(p, now)
	for i := 0; i < 100; i++ {
		if got := Score(p, now); got != first {
			t.Fatalf("score not deterministic: %d then %d", first, got)
		}
	}
}
