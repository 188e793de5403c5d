package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Store abstracts the subset of state manager functionality the registry
// needs: tagged reads, staged tagged writes, and whole-operation commit or
// discard.
type Store interface {
	GetUint(key []byte) (uint64, bool, error)
	GetBytes(key []byte) ([]byte, bool, error)
	PutUint(key []byte, value uint64) error
	PutBytes(key []byte, value []byte) error
	Commit() error
	Discard()
}

// Key layout mirrors the deployed contract: a literal prefix, the big-endian
// 8-byte index, and a literal per-field suffix. Indices are 1-based, so the
// derivation is collision-free for 1..processor_count.
var (
	processorCountKey = []byte("processor_count")
	processorPrefix   = []byte("processor_")

	suffixName           = []byte("_name")
	suffixEnabled        = []byte("_enabled")
	suffixTotalTxn       = []byte("_total_txn")
	suffixSuccessTxn     = []byte("_success_txn")
	suffixTotalAmount    = []byte("_total_amount")
	suffixAvgTime        = []byte("_avg_time")
	suffixFirstActivated = []byte("_first_activated")
	suffixMonthlyTxn     = []byte("_monthly_txn")
	suffixMonthlyAmount  = []byte("_monthly_amount")
	suffixLastUpdated    = []byte("_last_updated")
	suffixPriority       = []byte("_priority")
)

// uintSuffixes lists every integer field suffix in stored order. Used when a
// whole record is loaded or enumerated.
var uintSuffixes = [][]byte{
	suffixEnabled,
	suffixTotalTxn,
	suffixSuccessTxn,
	suffixTotalAmount,
	suffixAvgTime,
	suffixFirstActivated,
	suffixMonthlyTxn,
	suffixMonthlyAmount,
	suffixLastUpdated,
	suffixPriority,
}

// UintFieldsPerProcessor is the number of integer entries each record
// occupies; each record additionally occupies one byte-string entry for the
// name.
var UintFieldsPerProcessor = uint64(len(uintSuffixes))

// RequiredSlots reports the minimum schema capacity for a record set of n
// processors: one integer for the count plus the per-record fields.
func RequiredSlots(n uint64) (uints uint64, byteSlices uint64) {
	return 1 + n*UintFieldsPerProcessor, n
}

func fieldKey(index uint64, suffix []byte) []byte {
	key := make([]byte, 0, len(processorPrefix)+8+len(suffix))
	key = append(key, processorPrefix...)
	key = binary.BigEndian.AppendUint64(key, index)
	return append(key, suffix...)
}

var errRecordIncomplete = errors.New("registry: processor record incomplete")

// codec exposes typed per-field access to processor records. Integer and
// byte-string fields never share a key.
type codec struct {
	store Store
}

func (c codec) processorCount() (uint64, bool, error) {
	return c.store.GetUint(processorCountKey)
}

func (c codec) writeProcessorCount(n uint64) error {
	return c.store.PutUint(processorCountKey, n)
}

func (c codec) readUint(index uint64, suffix []byte) (uint64, error) {
	value, ok, err := c.store.GetUint(fieldKey(index, suffix))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: processor %d missing %s", errRecordIncomplete, index, suffix)
	}
	return value, nil
}

func (c codec) writeUint(index uint64, suffix []byte, value uint64) error {
	return c.store.PutUint(fieldKey(index, suffix), value)
}

func (c codec) readName(index uint64) (string, error) {
	raw, ok, err := c.store.GetBytes(fieldKey(index, suffixName))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: processor %d missing name", errRecordIncomplete, index)
	}
	return string(raw), nil
}

func (c codec) writeName(index uint64, name string) error {
	return c.store.PutBytes(fieldKey(index, suffixName), []byte(name))
}

// loadProcessor decodes the full record for index. Every field must be
// present; a partially written record is a corruption, never a committed
// state.
func (c codec) loadProcessor(index uint64) (Processor, error) {
	p := Processor{Index: index}
	var err error
	if p.Name, err = c.readName(index); err != nil {
		return Processor{}, err
	}
	fields := []struct {
		suffix []byte
		dst    *uint64
	}{
		{suffixTotalTxn, &p.TotalTransactions},
		{suffixSuccessTxn, &p.SuccessfulTransactions},
		{suffixTotalAmount, &p.TotalAmount},
		{suffixAvgTime, &p.AvgProcessingTime},
		{suffixFirstActivated, &p.FirstActivated},
		{suffixMonthlyTxn, &p.MonthlyTransactions},
		{suffixMonthlyAmount, &p.MonthlyAmount},
		{suffixLastUpdated, &p.LastUpdated},
		{suffixPriority, &p.CalculatedPriority},
	}
	for _, field := range fields {
		if *field.dst, err = c.readUint(index, field.suffix); err != nil {
			return Processor{}, err
		}
	}
	enabled, err := c.readUint(index, suffixEnabled)
	if err != nil {
		return Processor{}, err
	}
	p.Enabled = enabled == 1
	return p, nil
}

// loadAll decodes every record, ordered by ascending index.
func (c codec) loadAll(count uint64) ([]Processor, error) {
	procs := make([]Processor, 0, count)
	for index := uint64(1); index <= count; index++ {
		p, err := c.loadProcessor(index)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// writeMetrics stages the six fields the record-outcome rule touches.
func (c codec) writeMetrics(p Processor) error {
	writes := []struct {
		suffix []byte
		value  uint64
	}{
		{suffixTotalTxn, p.TotalTransactions},
		{suffixSuccessTxn, p.SuccessfulTransactions},
		{suffixTotalAmount, p.TotalAmount},
		{suffixAvgTime, p.AvgProcessingTime},
		{suffixMonthlyTxn, p.MonthlyTransactions},
		{suffixMonthlyAmount, p.MonthlyAmount},
		{suffixLastUpdated, p.LastUpdated},
	}
	for _, w := range writes {
		if err := c.writeUint(p.Index, w.suffix, w.value); err != nil {
			return err
		}
	}
	return nil
}

func (c codec) writeEnabled(index uint64, enabled bool) error {
	value := uint64(0)
	if enabled {
		value = 1
	}
	return c.writeUint(index, suffixEnabled, value)
}

func (c codec) writePriority(index uint64, priority uint64) error {
	return c.writeUint(index, suffixPriority, priority)
}

// writeProcessor stages every field of a freshly initialised record.
func (c codec) writeProcessor(p Processor) error {
	if err := c.writeName(p.Index, p.Name); err != nil {
		return err
	}
	if err := c.writeEnabled(p.Index, p.Enabled); err != nil {
		return err
	}
	if err := c.writeUint(p.Index, suffixFirstActivated, p.FirstActivated); err != nil {
		return err
	}
	if err := c.writeMetrics(p); err != nil {
		return err
	}
	return c.writePriority(p.Index, p.CalculatedPriority)
}
