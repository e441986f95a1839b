package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/db/prefixeddb"
	"github.com/vocdoni/sealbid-node/types"
)

// Tx is a read-write view over all storage namespaces. Reads observe the
// writes already made in the same Tx. It is only valid inside the function
// passed to Storage.Update.
type Tx struct {
	wTx         db.WriteTx
	settlements []*types.SettlementRecord
}

func (tx *Tx) get(prefix, key []byte, out any) error {
	return getArtifact(tx.wTx, prefix, key, out)
}

func (tx *Tx) has(prefix, key []byte) (bool, error) {
	return hasArtifact(tx.wTx, prefix, key)
}

func (tx *Tx) set(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(tx.wTx, prefix).Set(key, data)
}

// create stores artifact under prefix+key, failing with ErrKeyAlreadyExists
// if the key is taken.
func (tx *Tx) create(prefix, key []byte, artifact any) error {
	exists, err := tx.has(prefix, key)
	if err != nil {
		return err
	}
	if exists {
		return ErrKeyAlreadyExists
	}
	return tx.set(prefix, key, artifact)
}

// Auction returns the auction stored under id.
func (tx *Tx) Auction(id types.AuctionID) (*types.AuctionState, error) {
	a := &types.AuctionState{}
	if err := tx.get(auctionPrefix, auctionKey(id), a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAuction stores a new auction, ErrKeyAlreadyExists if id is taken.
func (tx *Tx) CreateAuction(a *types.AuctionState) error {
	return tx.create(auctionPrefix, auctionKey(a.ID), a)
}

// SetAuction overwrites the stored auction.
func (tx *Tx) SetAuction(a *types.AuctionState) error {
	return tx.set(auctionPrefix, auctionKey(a.ID), a)
}

// Computation returns the handle stored under offset.
func (tx *Tx) Computation(offset uint64) (*types.ComputationHandle, error) {
	h := &types.ComputationHandle{}
	if err := tx.get(computationPrefix, computationKey(offset), h); err != nil {
		return nil, err
	}
	return h, nil
}

// HasComputation reports whether a handle exists under offset.
func (tx *Tx) HasComputation(offset uint64) (bool, error) {
	return tx.has(computationPrefix, computationKey(offset))
}

// CreateComputation stores a new handle, ErrKeyAlreadyExists if the offset
// is taken.
func (tx *Tx) CreateComputation(h *types.ComputationHandle) error {
	return tx.create(computationPrefix, computationKey(h.Offset), h)
}

// SetComputation overwrites the stored handle.
func (tx *Tx) SetComputation(h *types.ComputationHandle) error {
	return tx.set(computationPrefix, computationKey(h.Offset), h)
}

// usedNonce records which computation consumed a requester nonce.
type usedNonce struct {
	Offset uint64 `cbor:"0,keyasint"`
	UsedAt int64  `cbor:"1,keyasint"`
}

// NonceUsed reports whether nonce was already consumed for pubKey.
func (tx *Tx) NonceUsed(pubKey types.PublicKey, nonce types.Nonce) (bool, error) {
	return tx.has(noncePrefix, nonceKey(pubKey, nonce))
}

// MarkNonceUsed consumes nonce for pubKey, ErrKeyAlreadyExists if it was
// already consumed.
func (tx *Tx) MarkNonceUsed(pubKey types.PublicKey, nonce types.Nonce, offset uint64, usedAt int64) error {
	return tx.create(noncePrefix, nonceKey(pubKey, nonce), &usedNonce{Offset: offset, UsedAt: usedAt})
}

// CreateSettlement stores the settlement of an auction. An auction settles
// once: ErrKeyAlreadyExists otherwise.
func (tx *Tx) CreateSettlement(rec *types.SettlementRecord) error {
	if err := tx.create(settlementPrefix, settlementKey(rec.AuctionID), rec); err != nil {
		if errors.Is(err, ErrKeyAlreadyExists) {
			return fmt.Errorf("settlement for auction %s: %w", rec.AuctionID, err)
		}
		return err
	}
	tx.settlements = append(tx.settlements, rec)
	return nil
}
