package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// AuctionState is the record of one sealed-bid auction. EncryptedBids and
// BidderKeys always have MaxBidders slots; slot i is populated iff
// i < BidCount, unused bid slots hold the zero sentinel.
type AuctionState struct {
	ID            AuctionID        `json:"id" cbor:"0,keyasint"`
	Authority     common.Address   `json:"authority" cbor:"1,keyasint"`
	IsOpen        bool             `json:"isOpen" cbor:"2,keyasint"`
	BidCount      int              `json:"bidCount" cbor:"3,keyasint"`
	MaxBidders    int              `json:"maxBidders" cbor:"4,keyasint"`
	EncryptedBids []Ciphertext     `json:"encryptedBids" cbor:"5,keyasint"`
	BidderKeys    []common.Address `json:"bidderKeys" cbor:"6,keyasint"`
	CreatedAt     int64            `json:"createdAt" cbor:"7,keyasint"`
	ClosedAt      int64            `json:"closedAt,omitempty" cbor:"8,keyasint,omitempty"`
}

// NewAuctionState returns an open auction with maxBidders empty slots.
func NewAuctionState(authority common.Address, maxBidders int, createdAt int64) *AuctionState {
	return &AuctionState{
		ID:            DeriveAuctionID(authority),
		Authority:     authority,
		IsOpen:        true,
		MaxBidders:    maxBidders,
		EncryptedBids: make([]Ciphertext, maxBidders),
		BidderKeys:    make([]common.Address, maxBidders),
		CreatedAt:     createdAt,
	}
}

// Snapshot returns a copy of all bid slots, unused trailing slots holding
// the zero sentinel.
func (a *AuctionState) Snapshot() []Ciphertext {
	out := make([]Ciphertext, a.MaxBidders)
	copy(out, a.EncryptedBids[:a.BidCount])
	return out
}

// Bidder returns the bidder identity of slot index, if populated.
func (a *AuctionState) Bidder(index int) (common.Address, bool) {
	if index < 0 || index >= a.BidCount {
		return common.Address{}, false
	}
	return a.BidderKeys[index], true
}
