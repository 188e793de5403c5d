package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Processor is the decoded logical view over the per-field state entries of a
// single payment processor. Field semantics follow the deployed ledger
// layout; all counters are lifetime totals.
type Processor struct {
	Index                  uint64
	Name                   string
	Enabled                bool
	TotalTransactions      uint64
	SuccessfulTransactions uint64
	TotalAmount            uint64
	AvgProcessingTime      uint64
	FirstActivated         uint64
	// MonthlyTransactions and MonthlyAmount keep the stored layout's field
	// names but accumulate for the processor's entire lifetime: the deployed
	// contract never evicts a window, and this implementation reproduces
	// that behaviour rather than guessing an intended period.
	MonthlyTransactions uint64
	MonthlyAmount       uint64
	LastUpdated         uint64
	CalculatedPriority  uint64
}

// Seed describes one processor of the initial record set: its display name
// and the latency estimate its running average starts from.
type Seed struct {
	Name              string `yaml:"name"`
	AvgProcessingTime uint64 `yaml:"avgProcessingTimeMs"`
}

// DefaultSeeds returns the processor set of the reproduced deployment.
func DefaultSeeds() []Seed {
	return []Seed{
		{Name: "Stripe", AvgProcessingTime: 150},
		{Name: "PayPal", AvgProcessingTime: 200},
		{Name: "Square", AvgProcessingTime: 180},
	}
}

// ValidateSeeds checks a seed set before it is allowed to initialise a record
// set.
func ValidateSeeds(seeds []Seed) error {
	if len(seeds) == 0 {
		return errors.New("registry: at least one processor seed required")
	}
	for i, seed := range seeds {
		if strings.TrimSpace(seed.Name) == "" {
			return fmt.Errorf("registry: seed %d: name required", i+1)
		}
	}
	return nil
}

// Operation is the closed set of requests the dispatcher accepts. Arguments
// are validated into typed fields before any business logic runs.
type Operation interface {
	isOperation()
	// Selector returns the wire selector string, empty for reads.
	Selector() string
}

// RecordPerformanceOp folds one transaction outcome into a processor's
// running metrics and triggers a priority recalculation.
type RecordPerformanceOp struct {
	Index            uint64
	Amount           uint64
	Succeeded        bool
	ProcessingTimeMS uint64
}

// RecalculateOp recomputes every processor's calculated priority.
type RecalculateOp struct{}

// ToggleOp sets a processor's enabled flag.
type ToggleOp struct {
	Index   uint64
	Enabled bool
}

// ReadOp performs no state change and always succeeds, before and after the
// mutation window closes.
type ReadOp struct{}

func (RecordPerformanceOp) isOperation() {}
func (RecalculateOp) isOperation()       {}
func (ToggleOp) isOperation()            {}
func (ReadOp) isOperation()              {}

func (RecordPerformanceOp) Selector() string { return SelectorUpdatePerformance }
func (RecalculateOp) Selector() string       { return SelectorRecalculatePriorities }
func (ToggleOp) Selector() string            { return SelectorToggle }
func (ReadOp) Selector() string              { return "" }
