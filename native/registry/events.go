package registry

import "strconv"

// Event is the canonical payload emitted for every accepted operation. It is
// part of the engine's return value rather than a side channel so replaying
// the same operations yields the same events.
type Event struct {
	Type       string
	Attributes map[string]string
}

const (
	// EventTypeCreated is emitted once, when the record set is initialised.
	EventTypeCreated = "registry.created"
	// EventTypePerformanceRecorded is emitted when a transaction outcome is
	// folded into a processor's metrics.
	EventTypePerformanceRecorded = "registry.performanceRecorded"
	// EventTypeToggled is emitted when a processor's enabled flag changes.
	EventTypeToggled = "registry.toggled"
	// EventTypeRecalculated is emitted after every priority recalculation.
	EventTypeRecalculated = "registry.prioritiesRecalculated"
)

func NewCreatedEvent(count uint64, now uint64) Event {
	return Event{Type: EventTypeCreated, Attributes: map[string]string{
		"processorCount": strconv.FormatUint(count, 10),
		"createdAt":      strconv.FormatUint(now, 10),
	}}
}

func NewPerformanceRecordedEvent(updated Processor, op RecordPerformanceOp) Event {
	return Event{Type: EventTypePerformanceRecorded, Attributes: map[string]string{
		"index":             strconv.FormatUint(op.Index, 10),
		"amount":            strconv.FormatUint(op.Amount, 10),
		"succeeded":         strconv.FormatBool(op.Succeeded),
		"processingTimeMs":  strconv.FormatUint(op.ProcessingTimeMS, 10),
		"totalTransactions": strconv.FormatUint(updated.TotalTransactions, 10),
		"avgProcessingTime": strconv.FormatUint(updated.AvgProcessingTime, 10),
	}}
}

func NewToggledEvent(index uint64, enabled bool, now uint64) Event {
	return Event{Type: EventTypeToggled, Attributes: map[string]string{
		"index":     strconv.FormatUint(index, 10),
		"enabled":   strconv.FormatBool(enabled),
		"toggledAt": strconv.FormatUint(now, 10),
	}}
}

// NewRecalculatedEvent carries the score and resulting priority per index so
// consumers can instrument rankings without re-reading state.
func NewRecalculatedEvent(strategy Strategy, procs []Processor, priorities []uint64, now uint64) Event {
	attrs := map[string]string{
		"strategy":       string(strategy),
		"recalculatedAt": strconv.FormatUint(now, 10),
	}
	for i, p := range procs {
		index := strconv.FormatUint(p.Index, 10)
		attrs["score_"+index] = strconv.FormatUint(Score(p, now), 10)
		attrs["priority_"+index] = strconv.FormatUint(priorities[i], 10)
	}
	return Event{Type: EventTypeRecalculated, Attributes: attrs}
}
