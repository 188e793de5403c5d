package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrExpiredWindow marks a mutating operation submitted at or after the
	// configured expiry epoch. Reads are unaffected.
	ErrExpiredWindow = errors.New("registry: mutation window expired")
	// ErrInvalidIndex marks an index outside 1..processor_count.
	ErrInvalidIndex = errors.New("registry: processor index out of range")
	// ErrNotInitialized is returned when an operation arrives before the
	// record set was created.
	ErrNotInitialized = errors.New("registry: record set not initialised")
	// ErrAlreadyInitialized guards the create operation, which runs exactly
	// once.
	ErrAlreadyInitialized = errors.New("registry: record set already initialised")
)

// IsRejection reports whether err is a validation rejection rather than an
// infrastructure failure. A rejection means the operation was refused and no
// state was mutated; callers surface it as accepted=false instead of an
// internal error.
func IsRejection(err error) bool {
	for _, sentinel := range []error{
		ErrExpiredWindow,
		ErrInvalidIndex,
		ErrNotInitialized,
		ErrAlreadyInitialized,
		ErrUnknownOperation,
		ErrMalformedOperation,
		ErrInvalidFlag,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Config carries the engine's fixed parameters.
type Config struct {
	// ExpiryEpoch is the unix timestamp at and after which every mutating
	// operation is rejected. Reads remain permitted indefinitely.
	ExpiryEpoch uint64
	// Strategy selects the ranking algorithm. StrategyLegacyTriple is only
	// valid for a record set of exactly three processors.
	Strategy Strategy
}

// Engine is the single entry point of the registry state machine. It
// validates each operation, applies its writes against the staged store view
// and commits them atomically; any validation failure discards the stage so
// the committed state is untouched.
//
// Mutating calls are serialised by an internal mutex: the engine is the only
// writer and each operation holds the critical section for its whole
// validate-then-commit sequence. Note that, like the contract it reproduces,
// the engine performs no sender authorisation on mutating operations.
type Engine struct {
	mu    sync.Mutex
	store Store
	codec codec
	cfg   Config
	nowFn func() uint64
}

// NewEngine constructs an engine over the supplied store.
func NewEngine(store Store, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("registry: store required")
	}
	if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	return &Engine{
		store: store,
		codec: codec{store: store},
		cfg:   cfg,
		nowFn: func() uint64 { return uint64(time.Now().Unix()) },
	}, nil
}

// SetNowFunc overrides the wall clock. Primarily leveraged in tests to
// provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// Create initialises the record set from the seed list: processor_count plus
// one full record per seed with zeroed counters, the seeded latency average,
// first_activated and last_updated at the current time, enabled on, and the
// initial priority equal to the index. It runs exactly once.
func (e *Engine) Create(seeds []Seed) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ValidateSeeds(seeds); err != nil {
		return nil, err
	}
	if e.cfg.Strategy == StrategyLegacyTriple && len(seeds) != 3 {
		return nil, fmt.Errorf("registry: legacy ranking requires exactly 3 processors, have %d", len(seeds))
	}
	if _, ok, err := e.codec.processorCount(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	now := e.nowFn()
	count := uint64(len(seeds))
	if err := e.codec.writeProcessorCount(count); err != nil {
		e.store.Discard()
		return nil, err
	}
	for i, seed := range seeds {
		index := uint64(i + 1)
		record := Processor{
			Index:              index,
			Name:               seed.Name,
			Enabled:            true,
			AvgProcessingTime:  seed.AvgProcessingTime,
			FirstActivated:     now,
			LastUpdated:        now,
			CalculatedPriority: index,
		}
		if err := e.codec.writeProcessor(record); err != nil {
			e.store.Discard()
			return nil, err
		}
	}
	if err := e.store.Commit(); err != nil {
		e.store.Discard()
		return nil, err
	}
	return []Event{NewCreatedEvent(count, now)}, nil
}

// Apply runs one operation to completion under the engine's critical
// section. On success every staged write is committed together; on any error
// the stage is discarded and the committed state is byte-for-byte unchanged.
func (e *Engine) Apply(op Operation) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := op.(ReadOp); ok {
		// Reads never mutate and never expire.
		return nil, nil
	}

	events, err := e.applyMutation(op)
	if err != nil {
		e.store.Discard()
		return nil, err
	}
	if err := e.store.Commit(); err != nil {
		e.store.Discard()
		return nil, err
	}
	return events, nil
}

func (e *Engine) applyMutation(op Operation) ([]Event, error) {
	now := e.nowFn()
	if now >= e.cfg.ExpiryEpoch {
		return nil, fmt.Errorf("%w: now=%d expiry=%d", ErrExpiredWindow, now, e.cfg.ExpiryEpoch)
	}
	count, ok, err := e.codec.processorCount()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}

	switch op := op.(type) {
	case RecordPerformanceOp:
		if op.Index < 1 || op.Index > count {
			return nil, fmt.Errorf("%w: %d (count %d)", ErrInvalidIndex, op.Index, count)
		}
		record, err := e.codec.loadProcessor(op.Index)
		if err != nil {
			return nil, err
		}
		updated := ApplyOutcome(record, op.Amount, op.Succeeded, op.ProcessingTimeMS, now)
		if err := e.codec.writeMetrics(updated); err != nil {
			return nil, err
		}
		recalcEvent, err := e.recalculate(count, now)
		if err != nil {
			return nil, err
		}
		return []Event{NewPerformanceRecordedEvent(updated, op), recalcEvent}, nil

	case RecalculateOp:
		event, err := e.recalculate(count, now)
		if err != nil {
			return nil, err
		}
		return []Event{event}, nil

	case ToggleOp:
		if op.Index < 1 || op.Index > count {
			return nil, fmt.Errorf("%w: %d (count %d)", ErrInvalidIndex, op.Index, count)
		}
		if err := e.codec.writeEnabled(op.Index, op.Enabled); err != nil {
			return nil, err
		}
		return []Event{NewToggledEvent(op.Index, op.Enabled, now)}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
}

// recalculate stages a fresh priority for every record. Reads go through the
// staged view, so metrics written earlier in the same operation are visible.
func (e *Engine) recalculate(count uint64, now uint64) (Event, error) {
	procs, err := e.codec.loadAll(count)
	if err != nil {
		return Event{}, err
	}
	priorities, err := Rank(e.cfg.Strategy, procs, now)
	if err != nil {
		return Event{}, err
	}
	for i, p := range procs {
		if err := e.codec.writePriority(p.Index, priorities[i]); err != nil {
			return Event{}, err
		}
	}
	return NewRecalculatedEvent(e.cfg.Strategy, procs, priorities, now), nil
}
