package registry

// Scoring constants. The success rate is expressed in basis points and the
// component weights sum to 100, bounding the composite to 0..4505 under the
// stated caps. All arithmetic stays in uint64; the largest intermediate term
// is 10000*40.
const (
	defaultSuccessRateBps = 9500
	secondsPerDay         = 86400
	tenureCapDays         = 365
	volumeCapTxns         = 1000

	weightSuccessRate = 40
	weightVolume      = 25
	weightSpeed       = 20
	weightTenure      = 15
)

// Score derives the composite priority score for a record at the supplied
// timestamp. It is a pure function: identical inputs always yield the
// identical integer, independent of call order, so every node replaying the
// same operations computes the same ranking.
func Score(p Processor, now uint64) uint64 {
	successRate := uint64(defaultSuccessRateBps)
	if p.TotalTransactions > 0 {
		successRate = p.SuccessfulTransactions * 10000 / p.TotalTransactions
	}

	var tenureDays uint64
	if now > p.FirstActivated {
		tenureDays = (now - p.FirstActivated) / secondsPerDay
	}
	tenureScore := tenureDays
	if tenureScore > tenureCapDays {
		tenureScore = tenureCapDays
	}

	volumeScore := p.MonthlyTransactions
	if volumeScore > volumeCapTxns {
		volumeScore = volumeCapTxns
	}

	return (successRate*weightSuccessRate +
		volumeScore*weightVolume +
		speedScore(p.AvgProcessingTime)*weightSpeed +
		tenureScore*weightTenure) / 100
}

// speedScore buckets the running average latency into a fixed scale.
func speedScore(avgMS uint64) uint64 {
	switch {
	case avgMS < 50:
		return 1000
	case avgMS < 100:
		return 800
	case avgMS < 200:
		return 600
	case avgMS < 500:
		return 400
	default:
		return 200
	}
}
