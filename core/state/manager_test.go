package state

import (
	"errors"
	"testing"

	"payflow/storage"
)

func newTestManager(t *testing.T, schema Schema) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	m, err := NewManager(db, schema)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, db
}

func TestStagedWritesInvisibleUntilCommit(t *testing.T) {
	m, db := newTestManager(t, Schema{MaxUints: 4, MaxByteSlices: 4})
	if err := m.PutUint([]byte("counter"), 7); err != nil {
		t.Fatalf("put: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("staged write reached database")
	}
	value, ok, err := m.GetUint([]byte("counter"))
	if err != nil || !ok || value != 7 {
		t.Fatalf("overlay read: value=%d ok=%v err=%v", value, ok, err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	value, ok, err = m.GetUint([]byte("counter"))
	if err != nil || !ok || value != 7 {
		t.Fatalf("committed read: value=%d ok=%v err=%v", value, ok, err)
	}
}

func TestDiscardDropsEveryStagedWrite(t *testing.T) {
	m, _ := newTestManager(t, Schema{MaxUints: 4, MaxByteSlices: 4})
	if err := m.PutUint([]byte("a"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.PutBytes([]byte("b"), []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !m.Dirty() {
		t.Fatalf("expected dirty overlay")
	}
	m.Discard()
	if m.Dirty() {
		t.Fatalf("expected clean overlay after discard")
	}
	if _, ok, err := m.GetUint([]byte("a")); err != nil || ok {
		t.Fatalf("discarded write still visible: ok=%v err=%v", ok, err)
	}
	uints, byteSlices, err := m.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if uints != 0 || byteSlices != 0 {
		t.Fatalf("expected zero counts after discard, got %d/%d", uints, byteSlices)
	}
}

func TestCapacityEnforcedPerTag(t *testing.T) {
	m, _ := newTestManager(t, Schema{MaxUints: 2, MaxByteSlices: 1})
	if err := m.PutUint([]byte("u1"), 1); err != nil {
		t.Fatalf("put u1: %v", err)
	}
	if err := m.PutUint([]byte("u2"), 2); err != nil {
		t.Fatalf("put u2: %v", err)
	}
	if err := m.PutUint([]byte("u3"), 3); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for third uint, got %v", err)
	}
	if err := m.PutBytes([]byte("b1"), []byte("x")); err != nil {
		t.Fatalf("put b1: %v", err)
	}
	if err := m.PutBytes([]byte("b2"), []byte("y")); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for second byte slice, got %v", err)
	}
	// Overwriting an existing key consumes no capacity.
	if err := m.PutUint([]byte("u1"), 99); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := m.PutUint([]byte("u2"), 4); err != nil {
		t.Fatalf("overwrite committed key: %v", err)
	}
}

func TestTagNeverChanges(t *testing.T) {
	m, _ := newTestManager(t, Schema{MaxUints: 4, MaxByteSlices: 4})
	if err := m.PutUint([]byte("k"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.PutBytes([]byte("k"), []byte("x")); !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("expected ErrTagMismatch on staged key, got %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := m.PutBytes([]byte("k"), []byte("x")); !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("expected ErrTagMismatch on committed key, got %v", err)
	}
	if _, _, err := m.GetBytes([]byte("k")); !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("expected ErrTagMismatch on typed read, got %v", err)
	}
}

func TestCountsSurviveReopen(t *testing.T) {
	db := storage.NewMemDB()
	m, err := NewManager(db, Schema{MaxUints: 3, MaxByteSlices: 1})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.PutUint([]byte("u1"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.PutUint([]byte("u2"), 2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.PutBytes([]byte("b1"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reopened, err := NewManager(db, Schema{MaxUints: 3, MaxByteSlices: 1})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	uints, byteSlices, err := reopened.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if uints != 2 || byteSlices != 1 {
		t.Fatalf("expected restored counts 2/1, got %d/%d", uints, byteSlices)
	}
	if err := reopened.PutUint([]byte("u3"), 3); err != nil {
		t.Fatalf("put after reopen: %v", err)
	}
	if err := reopened.PutUint([]byte("u4"), 4); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded after reopen, got %v", err)
	}
	value, ok, err := reopened.GetUint([]byte("u2"))
	if err != nil || !ok || value != 2 {
		t.Fatalf("reopened read: value=%d ok=%v err=%v", value, ok, err)
	}
}

// failingBatchDB rejects every batched write without applying any entry,
// modelling an atomic backend refusing a transaction.
type failingBatchDB struct {
	*storage.MemDB
}

func (db failingBatchDB) WriteBatch([]storage.Entry) error {
	return errors.New("disk full")
}

func TestFailedCommitWritesNothing(t *testing.T) {
	mem := storage.NewMemDB()
	m, err := NewManager(failingBatchDB{mem}, Schema{MaxUints: 8, MaxByteSlices: 8})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, key := range []string{"u1", "u2", "u3", "u4"} {
		if err := m.PutUint([]byte(key), 1); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := m.Commit(); err == nil {
		t.Fatalf("expected commit error")
	}
	if mem.Len() != 0 {
		t.Fatalf("failed commit left %d keys in the backing database", mem.Len())
	}
	m.Discard()
	uints, _, err := m.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if uints != 0 {
		t.Fatalf("counts drifted after failed commit: %d", uints)
	}
}

// putFailDB refuses per-key writes; only the batch path works. Commit must
// flush everything, meta counts included, through a single batched write.
type putFailDB struct {
	*storage.MemDB
}

func (db putFailDB) Put([]byte, []byte) error {
	return errors.New("per-key writes forbidden")
}

func TestCommitFlushesThroughSingleBatch(t *testing.T) {
	mem := storage.NewMemDB()
	m, err := NewManager(putFailDB{mem}, Schema{MaxUints: 4, MaxByteSlices: 4})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.PutUint([]byte("u1"), 7); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.PutBytes([]byte("b1"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// Two entries plus the two meta count keys.
	if mem.Len() != 4 {
		t.Fatalf("expected 4 committed keys, got %d", mem.Len())
	}
	reopened, err := NewManager(mem, Schema{MaxUints: 4, MaxByteSlices: 4})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	uints, byteSlices, err := reopened.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if uints != 1 || byteSlices != 1 {
		t.Fatalf("expected counts 1/1 after reopen, got %d/%d", uints, byteSlices)
	}
}

// hasErrDB fails membership probes, as a flaky backend would.
type hasErrDB struct {
	*storage.MemDB
}

func (db hasErrDB) Has([]byte) (bool, error) {
	return false, errors.New("backend unavailable")
}

func TestStageSurfacesLookupErrors(t *testing.T) {
	m, err := NewManager(hasErrDB{storage.NewMemDB()}, Schema{MaxUints: 4, MaxByteSlices: 4})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	// The first staged key probes an empty overlay; the second has to check
	// whether the first is new and must surface the failing probe instead of
	// counting it as pre-existing.
	if err := m.PutUint([]byte("u1"), 1); err != nil {
		t.Fatalf("put u1: %v", err)
	}
	if err := m.PutUint([]byte("u2"), 2); err == nil {
		t.Fatalf("expected staging to surface the lookup error")
	}
	if _, _, err := m.Counts(); err == nil {
		t.Fatalf("expected counts to surface the lookup error")
	}
	if err := m.Commit(); err == nil {
		t.Fatalf("expected commit to surface the lookup error")
	}
}

func TestCorruptValueSurfaces(t *testing.T) {
	m, db := newTestManager(t, Schema{MaxUints: 2, MaxByteSlices: 2})
	if err := db.Put([]byte("junk"), []byte{0xff, 0x01}); err != nil {
		t.Fatalf("seed junk: %v", err)
	}
	if _, _, err := m.GetUint([]byte("junk")); !errors.Is(err, ErrCorruptValue) {
		t.Fatalf("expected ErrCorruptValue, got %v", err)
	}
}
