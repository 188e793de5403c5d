package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire selectors. An operation travels as a positional argument list: the
// first argument is the selector string, the rest are big-endian unsigned
// integers. An empty argument list is a read.
const (
	SelectorUpdatePerformance     = "update_performance"
	SelectorRecalculatePriorities = "recalculate_priorities"
	SelectorToggle                = "toggle"
)

var (
	// ErrUnknownOperation marks a selector outside the closed operation set.
	ErrUnknownOperation = errors.New("registry: unknown operation")
	// ErrMalformedOperation marks an argument list that cannot be decoded
	// into the selector's typed fields.
	ErrMalformedOperation = errors.New("registry: malformed operation")
	// ErrInvalidFlag marks a boolean argument outside {0,1}.
	ErrInvalidFlag = errors.New("registry: boolean flag must be 0 or 1")
)

// decodeUint interprets a big-endian unsigned integer argument of up to
// eight bytes, matching the ledger's integer argument convention.
func decodeUint(arg []byte) (uint64, error) {
	if len(arg) == 0 || len(arg) > 8 {
		return 0, fmt.Errorf("%w: integer argument must be 1..8 bytes, got %d", ErrMalformedOperation, len(arg))
	}
	var value uint64
	for _, b := range arg {
		value = value<<8 | uint64(b)
	}
	return value, nil
}

func encodeUint(value uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

// ParseOperation validates a raw argument list into a typed operation. No
// business rules run here; range checks against the record set happen in the
// engine under its critical section.
func ParseOperation(args [][]byte) (Operation, error) {
	if len(args) == 0 {
		return ReadOp{}, nil
	}
	switch string(args[0]) {
	case SelectorUpdatePerformance:
		if len(args) != 5 {
			return nil, fmt.Errorf("%w: %s takes 4 arguments, got %d", ErrMalformedOperation, SelectorUpdatePerformance, len(args)-1)
		}
		index, err := decodeUint(args[1])
		if err != nil {
			return nil, err
		}
		amount, err := decodeUint(args[2])
		if err != nil {
			return nil, err
		}
		succeeded, err := decodeUint(args[3])
		if err != nil {
			return nil, err
		}
		if succeeded > 1 {
			return nil, fmt.Errorf("%w: succeeded=%d", ErrInvalidFlag, succeeded)
		}
		timeMS, err := decodeUint(args[4])
		if err != nil {
			return nil, err
		}
		return RecordPerformanceOp{Index: index, Amount: amount, Succeeded: succeeded == 1, ProcessingTimeMS: timeMS}, nil
	case SelectorRecalculatePriorities:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes no arguments", ErrMalformedOperation, SelectorRecalculatePriorities)
		}
		return RecalculateOp{}, nil
	case SelectorToggle:
		if len(args) != 3 {
			return nil, fmt.Errorf("%w: %s takes 2 arguments, got %d", ErrMalformedOperation, SelectorToggle, len(args)-1)
		}
		index, err := decodeUint(args[1])
		if err != nil {
			return nil, err
		}
		enabled, err := decodeUint(args[2])
		if err != nil {
			return nil, err
		}
		if enabled > 1 {
			return nil, fmt.Errorf("%w: enabled=%d", ErrInvalidFlag, enabled)
		}
		return ToggleOp{Index: index, Enabled: enabled == 1}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, string(args[0]))
}

// EncodeOperation serialises a typed operation to the wire argument list
// consumed by ParseOperation.
func EncodeOperation(op Operation) ([][]byte, error) {
	switch op := op.(type) {
	case ReadOp:
		return nil, nil
	case RecordPerformanceOp:
		succeeded := uint64(0)
		if op.Succeeded {
			succeeded = 1
		}
		return [][]byte{
			[]byte(SelectorUpdatePerformance),
			encodeUint(op.Index),
			encodeUint(op.Amount),
			encodeUint(succeeded),
			encodeUint(op.ProcessingTimeMS),
		}, nil
	case RecalculateOp:
		return [][]byte{[]byte(SelectorRecalculatePriorities)}, nil
	case ToggleOp:
		enabled := uint64(0)
		if op.Enabled {
			enabled = 1
		}
		return [][]byte{
			[]byte(SelectorToggle),
			encodeUint(op.Index),
			encodeUint(enabled),
		}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
}
