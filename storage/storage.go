/*
Package storage provides the persistent storage layer of the sealed-bid
auction node.

# Storage Organization

The storage uses a key-value database with prefixed namespaces:

  - a/ : auctionID → AuctionState (bid slots, open flag, bidder identities)
  - c/ : offset (big endian) → ComputationHandle (pending or terminal)
  - n/ : requester x25519 key + nonce → usedNonce (single use tracking)
  - s/ : auctionID → SettlementRecord (verified outcome)

Every write goes through a Tx. A Tx spans all namespaces and commits once,
so a resolution that closes an auction, records its handle and burns the
requester nonce is either fully stored or not stored at all.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/db/prefixeddb"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")

	// Prefixes
	auctionPrefix     = []byte("a/")
	computationPrefix = []byte("c/")
	noncePrefix       = []byte("n/")
	settlementPrefix  = []byte("s/")
)

// settlementCacheSize bounds the number of settlement records kept in
// memory. Records are immutable once written.
const settlementCacheSize = 1024

// Storage manages auctions, computation handles, used nonces and
// settlements.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	cache      *lru.Cache[types.AuctionID, *types.SettlementRecord]
}

// New creates a new Storage instance over database.
func New(database db.Database) *Storage {
	cache, err := lru.New[types.AuctionID, *types.SettlementRecord](settlementCacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	s := &Storage{
		db:    database,
		cache: cache,
	}
	if err := s.recover(); err != nil {
		log.Errorw(err, "failed to inspect pending computations")
	}
	return s
}

// recover reports computations left pending by a previous run. Their
// callbacks may still arrive, so they are kept as they are.
func (s *Storage) recover() error {
	pending, err := s.ListComputations(types.ComputationPending)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		log.Infow("pending computations found on startup", "count", len(pending))
	}
	return nil
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// Update runs fn inside a single write transaction holding the storage lock.
// The transaction is committed only if fn returns nil.
func (s *Storage) Update(fn func(tx *Tx) error) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()

	tx := &Tx{wTx: wTx}
	if err := fn(tx); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit storage transaction: %w", err)
	}
	for _, rec := range tx.settlements {
		s.cache.Add(rec.AuctionID, rec)
	}
	return nil
}

// getArtifact decodes the artifact stored under prefix+key into out.
func getArtifact(r db.Reader, prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(r, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

// hasArtifact reports whether prefix+key is stored.
func hasArtifact(r db.Reader, prefix, key []byte) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(r, prefix).Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, db.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// listArtifacts calls fn for every value stored under prefix, in key order,
// until fn returns false.
func listArtifacts(r db.Reader, prefix []byte, fn func(key, value []byte) bool) error {
	return prefixeddb.NewPrefixedReader(r, prefix).Iterate(nil, fn)
}
