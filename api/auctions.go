package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

// newAuction creates an auction owned by the given authority.
// POST /auctions
func (a *API) newAuction(w http.ResponseWriter, r *http.Request) {
	req := &CreateAuctionRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if req.Authority == (common.Address{}) {
		ErrMalformedAddress.With("missing authority").Write(w)
		return
	}
	auction, err := a.registry.Create(req.Authority, req.MaxBidders)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, auction)
}

// listAuctions returns the ids of all auctions.
// GET /auctions
func (a *API) listAuctions(w http.ResponseWriter, r *http.Request) {
	ids, err := a.registry.Auctions()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &AuctionListResponse{Auctions: ids})
}

// auction returns the state of an auction, including its sealed bids.
// GET /auctions/{auctionId}
func (a *API) auction(w http.ResponseWriter, r *http.Request) {
	auction, err := a.registry.Auction(auctionIDParam(r))
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, auction)
}

// placeBid stores a sealed bid in the next free slot.
// POST /auctions/{auctionId}/bids
func (a *API) placeBid(w http.ResponseWriter, r *http.Request) {
	req := &PlaceBidRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if req.Bidder == (common.Address{}) {
		ErrMalformedAddress.With("missing bidder").Write(w)
		return
	}
	slot, err := a.registry.PlaceBid(auctionIDParam(r), req.Bidder, req.Ciphertext)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, &PlaceBidResponse{Slot: slot})
}

// resolveAuction closes the auction and dispatches its resolution. The
// returned handle is pending until the computation callback arrives.
// POST /auctions/{auctionId}/resolve
func (a *API) resolveAuction(w http.ResponseWriter, r *http.Request) {
	req := &ResolveRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	handle, err := a.dispatcher.RequestResolution(r.Context(), auctionIDParam(r), req.Offset,
		types.EncryptionContext{PublicKey: req.PublicKey, Nonce: req.Nonce})
	if err != nil {
		if errors.Is(err, dispatcher.ErrSubmissionFailed) {
			log.Warnw("resolution submission failed", "offset", req.Offset, "error", err)
		}
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, handle)
}

// settlement returns the settlement record of a resolved auction.
// GET /auctions/{auctionId}/settlement
func (a *API) settlement(w http.ResponseWriter, r *http.Request) {
	rec, err := a.storage.Settlement(auctionIDParam(r))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrSettlementNotFound.WithErr(err).Write(w)
			return
		}
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, rec)
}
