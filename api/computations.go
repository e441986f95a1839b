package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

// computation returns the handle of a resolution computation.
// GET /computations/{offset}
func (a *API) computation(w http.ResponseWriter, r *http.Request) {
	offset, err := offsetParam(r)
	if err != nil {
		ErrMalformedComputation.WithErr(err).Write(w)
		return
	}
	handle, err := a.dispatcher.Computation(offset)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, handle)
}

// callback receives the signed output of a computation from the cluster.
// Outputs that fail verification abort the computation and are answered
// with a 4xx status so the cluster does not retry them.
// POST /callbacks/{uuid}
func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, CallbackUUIDURLParam) != a.callbackUUID.String() {
		ErrResourceNotFound.Write(w)
		return
	}
	out := &types.SignedOutput{}
	if !decodeBody(w, r, out) {
		return
	}
	rec, err := a.settler.OnCallback(r.Context(), out)
	if err != nil {
		log.Debugw("callback rejected", "offset", out.Offset, "error", err)
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, &CallbackResponse{
		AuctionID:   rec.AuctionID,
		WinnerIndex: rec.WinnerIndex,
		WinningBid:  rec.WinningBid,
	})
}
