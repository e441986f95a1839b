//nolint:lll
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/registry"
	"github.com/vocdoni/sealbid-node/settlement"
	"github.com/vocdoni/sealbid-node/storage"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404, 409 or 422, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
//
// Callback receivers treat every 4xx answer as permanent, so a code that a
// retry could resolve must map to a 5xx status.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedAuctionID   = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed auction ID")}
	ErrAuctionNotFound      = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("auction not found")}
	ErrMalformedParam       = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrMalformedAddress     = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrAuctionExists        = Error{Code: 40023, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("auction already exists")}
	ErrAuctionClosed        = Error{Code: 40024, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("auction is closed")}
	ErrAuctionFull          = Error{Code: 40025, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("auction is full")}
	ErrNotEnoughBids        = Error{Code: 40026, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("not enough bids to resolve")}
	ErrInvalidCiphertext    = Error{Code: 40027, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid ciphertext")}
	ErrInvalidMaxBidders    = Error{Code: 40028, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid max bidders")}
	ErrDuplicateOffset      = Error{Code: 40029, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("computation offset already in use")}
	ErrNonceReused          = Error{Code: 40030, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nonce already used")}
	ErrComputationNotFound  = Error{Code: 40031, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("computation not found")}
	ErrSettlementNotFound   = Error{Code: 40032, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("settlement not found")}
	ErrCallbackReplayed     = Error{Code: 40033, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("computation already finalized")}
	ErrComputationAborted   = Error{Code: 40034, HTTPstatus: http.StatusUnprocessableEntity, Err: fmt.Errorf("computation aborted")}
	ErrMalformedComputation = Error{Code: 40035, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed computation offset")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrSubmissionFailed           = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("computation submission failed")}
)

// domainErrors maps the sentinel errors of the node packages to API errors.
var domainErrors = []struct {
	err error
	api Error
}{
	{registry.ErrAuctionNotFound, ErrAuctionNotFound},
	{registry.ErrAuctionExists, ErrAuctionExists},
	{registry.ErrAuctionClosed, ErrAuctionClosed},
	{registry.ErrAuctionFull, ErrAuctionFull},
	{registry.ErrNotEnoughBids, ErrNotEnoughBids},
	{registry.ErrInvalidCiphertext, ErrInvalidCiphertext},
	{registry.ErrInvalidMaxBidders, ErrInvalidMaxBidders},
	{dispatcher.ErrDuplicateOffset, ErrDuplicateOffset},
	{dispatcher.ErrNonceReused, ErrNonceReused},
	{dispatcher.ErrUnknownComputation, ErrComputationNotFound},
	{dispatcher.ErrSubmissionFailed, ErrSubmissionFailed},
	{settlement.ErrUnknownComputation, ErrComputationNotFound},
	{settlement.ErrReplayedCallback, ErrCallbackReplayed},
	{settlement.ErrAbortedComputation, ErrComputationAborted},
	{storage.ErrNotFound, ErrResourceNotFound},
}

// toAPIError returns the API error matching err, or a generic internal
// error wrapping it.
func toAPIError(err error) Error {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.api.WithErr(err)
		}
	}
	return ErrGenericInternalServerError.WithErr(err)
}
