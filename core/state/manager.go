package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"payflow/storage"
)

// Values in the ledger state are tagged as either an unsigned 64-bit integer
// or an opaque byte string, mirroring the global-state model of the ledger the
// registry was originally deployed on. A key never changes tag once written.
type ValueTag byte

const (
	TagUint  ValueTag = 0x01
	TagBytes ValueTag = 0x02
)

// Value is a decoded state entry.
type Value struct {
	Tag   ValueTag
	Uint  uint64
	Bytes []byte
}

// Schema declares the fixed capacity of a state instance: the maximum number
// of integer-valued and byte-string-valued entries it may ever hold. The
// capacity is set at creation and never grows.
type Schema struct {
	MaxUints      uint64
	MaxByteSlices uint64
}

var (
	// ErrCapacityExceeded is returned when a put would push the number of
	// entries of the value's tag past the declared schema. It is detected
	// before any write reaches the backing database.
	ErrCapacityExceeded = errors.New("state: schema capacity exceeded")
	// ErrTagMismatch is returned when a read or write uses a different tag
	// than the one the key was first written with.
	ErrTagMismatch = errors.New("state: value tag mismatch")
	// ErrCorruptValue marks an undecodable stored entry.
	ErrCorruptValue = errors.New("state: corrupt stored value")
)

// Bookkeeping entries live under a reserved prefix so reopening a persistent
// database restores the per-tag entry counts without scanning.
var (
	metaUintCountKey  = []byte("!meta/uint_count")
	metaBytesCountKey = []byte("!meta/bytes_count")
)

// Manager mediates every read and write against the backing database. Writes
// land in a staging overlay; Commit flushes the overlay all-or-nothing and
// Discard drops it, so an aborted operation leaves the database untouched.
//
// The manager is not safe for concurrent use. The operation dispatcher is the
// single writer and serializes access around each validate-then-commit
// sequence.
type Manager struct {
	db     storage.Database
	schema Schema

	uintCount  uint64
	bytesCount uint64

	overlay map[string]Value
}

// NewManager opens a manager over db with the declared schema, restoring the
// committed entry counts recorded by previous runs.
func NewManager(db storage.Database, schema Schema) (*Manager, error) {
	if db == nil {
		return nil, errors.New("state: database required")
	}
	m := &Manager{db: db, schema: schema, overlay: make(map[string]Value)}
	var err error
	if m.uintCount, err = m.loadCount(metaUintCountKey); err != nil {
		return nil, err
	}
	if m.bytesCount, err = m.loadCount(metaBytesCountKey); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadCount(key []byte) (uint64, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, ErrCorruptValue
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Schema returns the declared capacity.
func (m *Manager) Schema() Schema {
	return m.schema
}

// Counts reports the number of entries per tag, staged writes included.
func (m *Manager) Counts() (uints uint64, byteSlices uint64, err error) {
	newUints, err := m.stagedNew(TagUint)
	if err != nil {
		return 0, 0, err
	}
	newBytes, err := m.stagedNew(TagBytes)
	if err != nil {
		return 0, 0, err
	}
	return m.uintCount + newUints, m.bytesCount + newBytes, nil
}

// stagedNew counts staged writes to keys absent from the committed state. A
// backend lookup failure surfaces rather than letting a new key pass as
// pre-existing.
func (m *Manager) stagedNew(tag ValueTag) (uint64, error) {
	var n uint64
	for key, v := range m.overlay {
		if v.Tag != tag {
			continue
		}
		ok, err := m.db.Has([]byte(key))
		if err != nil {
			return 0, err
		}
		if !ok {
			n++
		}
	}
	return n, nil
}

func encodeValue(v Value) []byte {
	switch v.Tag {
	case TagUint:
		buf := make([]byte, 9)
		buf[0] = byte(TagUint)
		binary.BigEndian.PutUint64(buf[1:], v.Uint)
		return buf
	case TagBytes:
		buf := make([]byte, 1+len(v.Bytes))
		buf[0] = byte(TagBytes)
		copy(buf[1:], v.Bytes)
		return buf
	}
	return nil
}

func decodeValue(raw []byte) (Value, error) {
	if len(raw) == 0 {
		return Value{}, ErrCorruptValue
	}
	switch ValueTag(raw[0]) {
	case TagUint:
		if len(raw) != 9 {
			return Value{}, ErrCorruptValue
		}
		return Value{Tag: TagUint, Uint: binary.BigEndian.Uint64(raw[1:])}, nil
	case TagBytes:
		return Value{Tag: TagBytes, Bytes: append([]byte(nil), raw[1:]...)}, nil
	}
	return Value{}, ErrCorruptValue
}

// lookup reads overlay first, committed state second.
func (m *Manager) lookup(key []byte) (Value, bool, error) {
	if staged, ok := m.overlay[string(key)]; ok {
		return staged, true, nil
	}
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	decoded, err := decodeValue(raw)
	if err != nil {
		return Value{}, false, err
	}
	return decoded, true, nil
}

// GetUint reads an integer entry. A missing key returns ok=false.
func (m *Manager) GetUint(key []byte) (uint64, bool, error) {
	v, ok, err := m.lookup(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if v.Tag != TagUint {
		return 0, false, fmt.Errorf("%w: key %q holds bytes", ErrTagMismatch, key)
	}
	return v.Uint, true, nil
}

// GetBytes reads a byte-string entry. A missing key returns ok=false.
func (m *Manager) GetBytes(key []byte) ([]byte, bool, error) {
	v, ok, err := m.lookup(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if v.Tag != TagBytes {
		return nil, false, fmt.Errorf("%w: key %q holds uint", ErrTagMismatch, key)
	}
	return append([]byte(nil), v.Bytes...), true, nil
}

func (m *Manager) stage(key []byte, v Value) error {
	existing, ok, err := m.lookup(key)
	if err != nil {
		return err
	}
	if ok {
		if existing.Tag != v.Tag {
			return fmt.Errorf("%w: key %q", ErrTagMismatch, key)
		}
		m.overlay[string(key)] = v
		return nil
	}
	// New key: it must fit within the declared schema, counting both the
	// committed entries and any staged writes to other new keys.
	staged, err := m.stagedNew(v.Tag)
	if err != nil {
		return err
	}
	switch v.Tag {
	case TagUint:
		if m.uintCount+staged >= m.schema.MaxUints {
			return fmt.Errorf("%w: uint slots (%d)", ErrCapacityExceeded, m.schema.MaxUints)
		}
	case TagBytes:
		if m.bytesCount+staged >= m.schema.MaxByteSlices {
			return fmt.Errorf("%w: byte-slice slots (%d)", ErrCapacityExceeded, m.schema.MaxByteSlices)
		}
	}
	m.overlay[string(key)] = v
	return nil
}

// PutUint stages an integer write.
func (m *Manager) PutUint(key []byte, value uint64) error {
	return m.stage(key, Value{Tag: TagUint, Uint: value})
}

// PutBytes stages a byte-string write.
func (m *Manager) PutBytes(key []byte, value []byte) error {
	return m.stage(key, Value{Tag: TagBytes, Bytes: append([]byte(nil), value...)})
}

// Commit flushes every staged write together with the updated entry counts in
// a single batched write, so the backing database holds either all of them or
// none. The overlay is cleared afterwards.
func (m *Manager) Commit() error {
	newUints, err := m.stagedNew(TagUint)
	if err != nil {
		return err
	}
	newBytes, err := m.stagedNew(TagBytes)
	if err != nil {
		return err
	}
	entries := make([]storage.Entry, 0, len(m.overlay)+2)
	for key, v := range m.overlay {
		entries = append(entries, storage.Entry{Key: []byte(key), Value: encodeValue(v)})
	}
	entries = append(entries,
		storage.Entry{Key: metaUintCountKey, Value: encodeCount(m.uintCount + newUints)},
		storage.Entry{Key: metaBytesCountKey, Value: encodeCount(m.bytesCount + newBytes)},
	)
	if err := m.db.WriteBatch(entries); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.uintCount += newUints
	m.bytesCount += newBytes
	m.overlay = make(map[string]Value)
	return nil
}

func encodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// Discard drops every staged write, leaving the committed state untouched.
func (m *Manager) Discard() {
	m.overlay = make(map[string]Value)
}

// Dirty reports whether any writes are staged.
func (m *Manager) Dirty() bool {
	return len(m.overlay) > 0
}
