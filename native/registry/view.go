package registry

import "fmt"

// StateEntry is one decoded key-value pair of the registry's state, rendered
// for the query surface. Exactly one of Uint or Bytes is meaningful,
// according to Tag.
type StateEntry struct {
	Key   string `json:"key"`
	Tag   string `json:"tag"`
	Uint  uint64 `json:"uint,omitempty"`
	Bytes string `json:"bytes,omitempty"`
}

// Snapshot returns every processor record, ordered by ascending index. It
// performs no writes and is safe to call at any time, including after the
// mutation window closed.
func (e *Engine) Snapshot() ([]Processor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	count, ok, err := e.codec.processorCount()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return e.codec.loadAll(count)
}

// ProcessorCount reports the size of the record set, ok=false before
// creation.
func (e *Engine) ProcessorCount() (uint64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.codec.processorCount()
}

// StateView enumerates the full state map with each entry decoded by its
// declared tag. The stored keys embed the big-endian index; the view renders
// them in the human-readable processor_<i>_<field> form.
func (e *Engine) StateView() ([]StateEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	count, ok, err := e.codec.processorCount()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	entries := []StateEntry{{Key: string(processorCountKey), Tag: "uint", Uint: count}}
	for index := uint64(1); index <= count; index++ {
		name, err := e.codec.readName(index)
		if err != nil {
			return nil, err
		}
		entries = append(entries, StateEntry{
			Key:   fmt.Sprintf("processor_%d_name", index),
			Tag:   "bytes",
			Bytes: name,
		})
		for _, suffix := range uintSuffixes {
			value, err := e.codec.readUint(index, suffix)
			if err != nil {
				return nil, err
			}
			entries = append(entries, StateEntry{
				Key:  fmt.Sprintf("processor_%d%s", index, suffix),
				Tag:  "uint",
				Uint: value,
			})
		}
	}
	return entries, nil
}
