package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/types"
)

// NodeInfo contains what a client needs to take part in auctions run by
// this node.
type NodeInfo struct {
	ClusterAddress    common.Address  `json:"clusterAddress"`
	ClusterPublicKey  types.PublicKey `json:"clusterPublicKey"`
	DefaultMaxBidders int             `json:"defaultMaxBidders"`
	MaxBiddersLimit   int             `json:"maxBiddersLimit"`
	// DefinitionOffsets maps each supported slot count to the computation
	// definition that resolves it.
	DefinitionOffsets map[int]uint32 `json:"definitionOffsets"`
}

// CreateAuctionRequest is the body of POST /auctions. A zero MaxBidders
// uses the node default.
type CreateAuctionRequest struct {
	Authority  common.Address `json:"authority"`
	MaxBidders int            `json:"maxBidders,omitempty"`
}

// AuctionListResponse is the body of GET /auctions.
type AuctionListResponse struct {
	Auctions []types.AuctionID `json:"auctions"`
}

// PlaceBidRequest is the body of POST /auctions/{auctionId}/bids.
type PlaceBidRequest struct {
	Bidder     common.Address   `json:"bidder"`
	Ciphertext types.Ciphertext `json:"ciphertext"`
}

// PlaceBidResponse returns the slot the bid was stored in.
type PlaceBidResponse struct {
	Slot int `json:"slot"`
}

// ResolveRequest is the body of POST /auctions/{auctionId}/resolve. The
// public key and nonce are those the bids were encrypted with.
type ResolveRequest struct {
	Offset    uint64          `json:"offset"`
	PublicKey types.PublicKey `json:"publicKey"`
	Nonce     types.Nonce     `json:"nonce"`
}

// CallbackResponse acknowledges a settled computation.
type CallbackResponse struct {
	AuctionID   types.AuctionID `json:"auctionId"`
	WinnerIndex uint64          `json:"winnerIndex"`
	WinningBid  uint64          `json:"winningBid"`
}
