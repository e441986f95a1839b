// Package inmemory implements an ephemeral db.Database, used by tests and by
// nodes started with db.type=inmemory.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/vocdoni/sealbid-node/db"
)

type entry struct {
	value   []byte
	version uint64
	deleted bool
}

// InMemoryDB implements an ephemeral in-memory db.Database with optimistic
// transactions: a WriteTx records the version of every key it reads or
// writes and Commit fails with db.ErrConflict if any of them changed.
type InMemoryDB struct {
	mu          sync.RWMutex
	data        map[string]entry
	nextVersion uint64
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{
		data: make(map[string]entry),
	}, nil
}

func (d *InMemoryDB) Close() error {
	return nil
}

// Compact drops the tombstones of deleted keys.
func (d *InMemoryDB) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, ent := range d.data {
		if ent.deleted {
			delete(d.data, k)
		}
	}
	return nil
}

func (d *InMemoryDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:     d,
		writes: make(map[string]*[]byte),
		reads:  make(map[string]uint64),
	}
}

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ent, ok := d.data[string(key)]
	if !ok || ent.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(ent.value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	entries := d.snapshot(prefix, nil)
	d.mu.RUnlock()
	iterateEntries(entries, len(prefix), callback)
	return nil
}

// snapshot copies the live entries under prefix. If versions is not nil the
// version of each copied key is stored in it. Callers must hold d.mu.
func (d *InMemoryDB) snapshot(prefix []byte, versions map[string]uint64) map[string][]byte {
	entries := make(map[string][]byte)
	for k, ent := range d.data {
		if ent.deleted || !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		entries[k] = bytes.Clone(ent.value)
		if versions != nil {
			versions[k] = ent.version
		}
	}
	return entries
}

func (d *InMemoryDB) version(key string) uint64 {
	return d.data[key].version
}

func (d *InMemoryDB) applyWrite(key string, value *[]byte) {
	d.nextVersion++
	ent := entry{version: d.nextVersion, deleted: value == nil}
	if value != nil {
		ent.value = bytes.Clone(*value)
	}
	d.data[key] = ent
}

// WriteTx is the transaction type of InMemoryDB. A nil entry in writes marks
// a deletion.
type WriteTx struct {
	db     *InMemoryDB
	writes map[string]*[]byte
	reads  map[string]uint64
	closed bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string) {
	if _, ok := tx.reads[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.reads[key] = tx.db.version(key)
	tx.db.mu.RUnlock()
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if pending, ok := tx.writes[k]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	tx.track(k)
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	versions := make(map[string]uint64)
	tx.db.mu.RLock()
	entries := tx.db.snapshot(prefix, versions)
	tx.db.mu.RUnlock()
	for k, v := range versions {
		if _, ok := tx.reads[k]; !ok {
			tx.reads[k] = v
		}
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	iterateEntries(entries, len(prefix), callback)
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	k := string(key)
	tx.track(k)
	v := bytes.Clone(value)
	tx.writes[k] = &v
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	k := string(key)
	tx.track(k)
	tx.writes[k] = nil
	return nil
}

// Apply copies the pending writes (including deletions) of other, which must
// be an in-memory transaction, possibly wrapped.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T to an inmemory transaction", other)
	}
	for k, v := range o.writes {
		tx.track(k)
		tx.writes[k] = v
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	for key, readVersion := range tx.reads {
		if tx.db.version(key) != readVersion {
			return db.ErrConflict
		}
	}
	for key, value := range tx.writes {
		tx.db.applyWrite(key, value)
	}
	tx.closed = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.reads = map[string]uint64{}
	tx.closed = true
}

// iterateEntries calls callback in key order, stripping the first
// prefixLen bytes of every key.
func iterateEntries(entries map[string][]byte, prefixLen int, callback func(key, value []byte) bool) {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if !callback([]byte(key)[prefixLen:], entries[key]) {
			return
		}
	}
}
