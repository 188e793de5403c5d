package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects the priority-ranking algorithm. The choice is explicit
// configuration: the legacy heuristic is never silently swapped for the
// general one.
type Strategy string

const (
	// StrategyLegacyTriple replays the deployed contract's pairwise
	// comparison heuristic. It is defined for exactly three processors and
	// does not guarantee a bijection onto {1,2,3}: ties and comparison
	// cycles can assign the same rank twice or leave rank 3 unassigned.
	StrategyLegacyTriple Strategy = "legacy-triple"
	// StrategyStableByScore ranks any number of processors by descending
	// score with ascending index as tie-break, producing a true permutation
	// of 1..N.
	StrategyStableByScore Strategy = "stable"
)

// ParseStrategy resolves a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case StrategyLegacyTriple:
		return StrategyLegacyTriple, nil
	case StrategyStableByScore:
		return StrategyStableByScore, nil
	}
	return "", fmt.Errorf("registry: unknown ranking strategy %q", name)
}

// Rank computes the priority for every record at the supplied timestamp.
// Records must be ordered by ascending index; the returned slice is parallel
// to the input.
func Rank(strategy Strategy, procs []Processor, now uint64) ([]uint64, error) {
	switch strategy {
	case StrategyLegacyTriple:
		if len(procs) != 3 {
			return nil, fmt.Errorf("registry: legacy ranking requires exactly 3 processors, have %d", len(procs))
		}
		return rankLegacyTriple(procs, now), nil
	case StrategyStableByScore:
		return rankStableByScore(procs, now), nil
	}
	return nil, fmt.Errorf("registry: unknown ranking strategy %q", strategy)
}

// rankLegacyTriple reproduces the deployed heuristic byte for byte: each
// processor is compared against the other two in ascending index order. Rank
// 1 when its score is >= both, rank 2 when >= the first comparator but < the
// second, rank 3 otherwise. The otherwise branch also covers < the first but
// >= the second, which is where the non-bijection quirk lives.
func rankLegacyTriple(procs []Processor, now uint64) []uint64 {
	scores := [3]uint64{
		Score(procs[0], now),
		Score(procs[1], now),
		Score(procs[2], now),
	}
	priorities := make([]uint64, 3)
	for i := range procs {
		first, second := otherTwo(i)
		own := scores[i]
		switch {
		case own >= scores[first] && own >= scores[second]:
			priorities[i] = 1
		case own >= scores[first]:
			priorities[i] = 2
		default:
			priorities[i] = 3
		}
	}
	return priorities
}

func otherTwo(i int) (int, int) {
	switch i {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

// rankStableByScore sorts by descending score, breaking ties by ascending
// index, and assigns ranks by sorted position.
func rankStableByScore(procs []Processor, now uint64) []uint64 {
	type scored struct {
		pos   int
		score uint64
	}
	order := make([]scored, len(procs))
	for i, p := range procs {
		order[i] = scored{pos: i, score: Score(p, now)}
	}
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].score != order[b].score {
			return order[a].score > order[b].score
		}
		return procs[order[a].pos].Index < procs[order[b].pos].Index
	})
	priorities := make([]uint64, len(procs))
	for rank, entry := range order {
		priorities[entry.pos] = uint64(rank + 1)
	}
	return priorities
}
