package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/backend"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/registry"
	"github.com/vocdoni/sealbid-node/settlement"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

// AuctioneerConfig holds the parameters of the auction core.
type AuctioneerConfig struct {
	// MaxBidders is the default slot count of new auctions.
	MaxBidders int
	// Cluster is the identity computation outputs must be signed with.
	Cluster common.Address
	// Artifacts and RequireProof configure proof verification of outputs.
	Artifacts    *tournament.ArtifactSet
	RequireProof bool
}

// Auctioneer composes the bid registry, the computation dispatcher and the
// settler over a single storage. It is the in-process entry point to every
// auction operation.
type Auctioneer struct {
	Storage    *storage.Storage
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Settler    *settlement.Settler
}

var _ backend.Callback = (*Auctioneer)(nil)

// NewAuctioneer wires the auction core on top of stg, dispatching
// resolutions to be.
func NewAuctioneer(stg *storage.Storage, be dispatcher.Backend, conf AuctioneerConfig) (*Auctioneer, error) {
	reg, err := registry.New(stg, registry.Config{MaxBidders: conf.MaxBidders})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	settler, err := settlement.New(stg, settlement.Config{
		Artifacts:    conf.Artifacts,
		RequireProof: conf.RequireProof,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create settler: %w", err)
	}
	d, err := dispatcher.New(stg, reg, be, dispatcher.Config{
		Cluster: conf.Cluster,
		Abort:   settler.Abort,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	return &Auctioneer{
		Storage:    stg,
		Registry:   reg,
		Dispatcher: d,
		Settler:    settler,
	}, nil
}

// CreateAuction opens an auction owned by authority.
func (a *Auctioneer) CreateAuction(authority common.Address, maxBidders int) (*types.AuctionState, error) {
	return a.Registry.Create(authority, maxBidders)
}

// PlaceBid stores a sealed bid and returns its slot.
func (a *Auctioneer) PlaceBid(id types.AuctionID, bidder common.Address, ct types.Ciphertext) (int, error) {
	return a.Registry.PlaceBid(id, bidder, ct)
}

// ResolveAuction closes the auction and dispatches its resolution under
// offset.
func (a *Auctioneer) ResolveAuction(ctx context.Context, id types.AuctionID, offset uint64, enc types.EncryptionContext) (*types.ComputationHandle, error) {
	return a.Dispatcher.RequestResolution(ctx, id, offset, enc)
}

// OnCallback settles or aborts the computation out answers.
func (a *Auctioneer) OnCallback(ctx context.Context, out *types.SignedOutput) (*types.SettlementRecord, error) {
	return a.Settler.OnCallback(ctx, out)
}

// Settlement returns the settlement record of an auction.
func (a *Auctioneer) Settlement(id types.AuctionID) (*types.SettlementRecord, error) {
	return a.Storage.Settlement(id)
}

// Deliver implements backend.Callback for a cluster running in the same
// process. Outputs the settler refuses are reported as rejected so the
// cluster does not retry them.
func (a *Auctioneer) Deliver(ctx context.Context, out *types.SignedOutput) error {
	_, err := a.OnCallback(ctx, out)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, settlement.ErrUnknownComputation),
		errors.Is(err, settlement.ErrReplayedCallback),
		errors.Is(err, settlement.ErrAbortedComputation):
		return fmt.Errorf("%w: %v", backend.ErrCallbackRejected, err)
	default:
		return err
	}
}
