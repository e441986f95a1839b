// Package registry holds the auction state machine: creation, bid
// placement and the one-way transition that closes an auction for
// resolution. Every operation loads, checks and writes the auction inside a
// single storage transaction, so a failed precondition never mutates state.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
	"github.com/vocdoni/sealbid-node/types/params"
)

var (
	ErrAuctionExists     = errors.New("auction already exists")
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionClosed     = errors.New("auction is closed")
	ErrAuctionFull       = errors.New("auction is full")
	ErrNotEnoughBids     = errors.New("not enough bids")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidMaxBidders = errors.New("invalid max bidders")
)

// Config holds the registry parameters.
type Config struct {
	// MaxBidders is the slot count of auctions created without an explicit
	// size. Zero means params.DefaultMaxBidders.
	MaxBidders int
}

// Snapshot is the frozen bid vector handed to the dispatcher when an
// auction closes. Bids always has MaxBidders entries; slots at or beyond
// BidCount hold the zero sentinel.
type Snapshot struct {
	AuctionID  types.AuctionID
	Bids       []types.Ciphertext
	BidCount   int
	MaxBidders int
}

// ResolutionHook runs inside the transaction that closes an auction. An
// error aborts the whole transaction, leaving the auction open.
type ResolutionHook func(tx *storage.Tx, snapshot *Snapshot) error

// Registry manages auction records.
type Registry struct {
	storage    *storage.Storage
	maxBidders int
	now        func() time.Time
}

// New returns a registry over stg.
func New(stg *storage.Storage, conf Config) (*Registry, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	maxBidders := conf.MaxBidders
	if maxBidders == 0 {
		maxBidders = params.DefaultMaxBidders
	}
	if err := validMaxBidders(maxBidders); err != nil {
		return nil, err
	}
	return &Registry{
		storage:    stg,
		maxBidders: maxBidders,
		now:        time.Now,
	}, nil
}

// DefaultMaxBidders returns the slot count used when Create gets zero.
func (r *Registry) DefaultMaxBidders() int {
	return r.maxBidders
}

// Create opens a new auction for authority with maxBidders slots (the
// configured default if zero). The auction id is derived from the
// authority, so an authority holds at most one auction.
func (r *Registry) Create(authority common.Address, maxBidders int) (*types.AuctionState, error) {
	if maxBidders == 0 {
		maxBidders = r.maxBidders
	}
	if err := validMaxBidders(maxBidders); err != nil {
		return nil, err
	}
	a := types.NewAuctionState(authority, maxBidders, r.now().Unix())
	if err := r.storage.Update(func(tx *storage.Tx) error {
		return tx.CreateAuction(a)
	}); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrAuctionExists, a.ID)
		}
		return nil, fmt.Errorf("create auction: %w", err)
	}
	log.Infow("auction created",
		"auctionID", a.ID.String(),
		"authority", authority.Hex(),
		"maxBidders", maxBidders)
	return a, nil
}

// Auction returns the current state of an auction.
func (r *Registry) Auction(id types.AuctionID) (*types.AuctionState, error) {
	a, err := r.storage.Auction(id)
	if err != nil {
		return nil, wrapNotFound(id, err)
	}
	return a, nil
}

// Auctions returns the ids of every auction known to the registry.
func (r *Registry) Auctions() ([]types.AuctionID, error) {
	ids, err := r.storage.ListAuctions()
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return ids, nil
}

// PlaceBid appends ciphertext and bidder at the next free slot and returns
// the slot index.
func (r *Registry) PlaceBid(id types.AuctionID, bidder common.Address, ciphertext types.Ciphertext) (int, error) {
	var slot int
	err := r.storage.Update(func(tx *storage.Tx) error {
		a, err := tx.Auction(id)
		if err != nil {
			return wrapNotFound(id, err)
		}
		if slot, err = placeBid(a, bidder, ciphertext); err != nil {
			return err
		}
		return tx.SetAuction(a)
	})
	if err != nil {
		return 0, err
	}
	log.Infow("bid placed", "auctionID", id.String(), "slot", slot)
	return slot, nil
}

// BeginResolution closes the auction and returns the snapshot of its bids.
// The hooks run in the same transaction, after the auction preconditions
// hold; if any fails nothing is written.
func (r *Registry) BeginResolution(id types.AuctionID, hooks ...ResolutionHook) (*Snapshot, error) {
	var snapshot *Snapshot
	err := r.storage.Update(func(tx *storage.Tx) error {
		a, err := tx.Auction(id)
		if err != nil {
			return wrapNotFound(id, err)
		}
		if snapshot, err = beginResolution(a, r.now().Unix()); err != nil {
			return err
		}
		if err := tx.SetAuction(a); err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(tx, snapshot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infow("auction closed for resolution", "auctionID", id.String(), "bids", snapshot.BidCount)
	return snapshot, nil
}

// placeBid applies a bid to a, which is left untouched on error.
func placeBid(a *types.AuctionState, bidder common.Address, ciphertext types.Ciphertext) (int, error) {
	if !a.IsOpen {
		return 0, ErrAuctionClosed
	}
	if a.BidCount >= a.MaxBidders {
		return 0, ErrAuctionFull
	}
	// the zero block is reserved for padding
	if ciphertext.IsSentinel() {
		return 0, fmt.Errorf("%w: all-zero ciphertext is reserved", ErrInvalidCiphertext)
	}
	slot := a.BidCount
	a.EncryptedBids[slot] = ciphertext
	a.BidderKeys[slot] = bidder
	a.BidCount++
	return slot, nil
}

// beginResolution closes a and snapshots its bids, leaving a untouched on
// error.
func beginResolution(a *types.AuctionState, now int64) (*Snapshot, error) {
	if !a.IsOpen {
		return nil, ErrAuctionClosed
	}
	if a.BidCount < params.MinBidders {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughBids, a.BidCount, params.MinBidders)
	}
	a.IsOpen = false
	a.ClosedAt = now
	return &Snapshot{
		AuctionID:  a.ID,
		Bids:       a.Snapshot(),
		BidCount:   a.BidCount,
		MaxBidders: a.MaxBidders,
	}, nil
}

func validMaxBidders(n int) error {
	if n < params.MinBidders || n > params.MaxBiddersLimit {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidMaxBidders, n, params.MinBidders, params.MaxBiddersLimit)
	}
	return nil
}

func wrapNotFound(id types.AuctionID, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAuctionNotFound, id)
	}
	return err
}
