// Package db defines the key-value database abstraction used by the node.
// Drivers live in subpackages (inmemory, pebbledb, mongodb) and are selected
// at runtime through metadb.
package db

import (
	"errors"
	"io"
)

const (
	// TypePebble selects the pebble (LSM) on-disk driver.
	TypePebble = "pebble"
	// TypeInMem selects the ephemeral in-memory driver.
	TypeInMem = "inmemory"
	// TypeMongo selects the MongoDB driver. The connection string is read
	// from the MONGODB_URL environment variable.
	TypeMongo = "mongodb"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrTxClosed is returned when operating on a committed or discarded tx.
	ErrTxClosed = errors.New("transaction already closed")
	// ErrConflict is returned by Commit when another transaction modified a
	// key read or written by this one.
	ErrConflict = errors.New("transaction conflict")
)

// Options defines generic parameters for creating a database.
type Options struct {
	Path string
}

// Reader contains the read-only database operations.
type Reader interface {
	// Get retrieves the value for the given key. If the key does not exist,
	// returns ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback with all key-value pairs in the database whose
	// key starts with prefix, in lexicographic key order. The prefix is
	// removed from the keys passed to callback. Iteration stops when
	// callback returns false.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx contains the database write operations. Reads see the writes
// buffered in the transaction.
type WriteTx interface {
	Reader
	// Set adds or replaces the key-value pair.
	Set(key, value []byte) error
	// Delete removes a key-value pair.
	Delete(key []byte) error
	// Apply copies the buffered writes of other into this transaction.
	Apply(other WriteTx) error
	// Commit applies the buffered writes to the database.
	Commit() error
	// Discard releases the transaction. It is safe to call after Commit.
	Discard()
}

// Database wraps all database operations.
type Database interface {
	io.Closer
	Reader
	WriteTx() WriteTx
	Compact() error
}

// UnwrapWriteTx returns the innermost WriteTx of a wrapped transaction
// (such as the prefixed one), so drivers can type-assert their own tx in
// Apply.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		u, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = u.Unwrap()
	}
}
