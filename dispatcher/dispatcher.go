// Package dispatcher turns a closed auction into a confidential computation
// request. It owns the pending handle table: a handle is recorded in the
// same transaction that closes the auction and burns the requester nonce,
// and only then is the request handed to the backend.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/registry"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

var (
	ErrDuplicateOffset    = errors.New("computation offset already in use")
	ErrNonceReused        = errors.New("nonce already used for this public key")
	ErrSubmissionFailed   = errors.New("computation submission failed")
	ErrUnknownComputation = errors.New("unknown computation")
)

// Backend executes computation requests. Submit must not block on the
// computation itself; the result arrives later through the callback path.
type Backend interface {
	Submit(ctx context.Context, req *types.ComputationRequest) error
}

// AbortFunc finalizes a pending handle as aborted.
type AbortFunc func(offset uint64, reason string) error

// Config holds the dispatcher dependencies.
type Config struct {
	// Cluster is the identity expected to sign the outputs of the
	// dispatched computations.
	Cluster common.Address
	// Abort is called when the backend rejects a request after the handle
	// was recorded. If nil the handle is aborted directly in storage.
	Abort AbortFunc
}

// Dispatcher requests auction resolutions.
type Dispatcher struct {
	storage  *storage.Storage
	registry *registry.Registry
	backend  Backend
	cluster  common.Address
	abort    AbortFunc
	// serializes the check-and-record of offsets and nonces
	mu  sync.Mutex
	now func() time.Time
}

// New returns a dispatcher.
func New(stg *storage.Storage, reg *registry.Registry, backend Backend, conf Config) (*Dispatcher, error) {
	if stg == nil || reg == nil || backend == nil {
		return nil, fmt.Errorf("storage, registry and backend are required")
	}
	if conf.Cluster == (common.Address{}) {
		return nil, fmt.Errorf("cluster address is required")
	}
	d := &Dispatcher{
		storage:  stg,
		registry: reg,
		backend:  backend,
		cluster:  conf.Cluster,
		abort:    conf.Abort,
		now:      time.Now,
	}
	if d.abort == nil {
		d.abort = d.abortInStorage
	}
	return d, nil
}

// RequestResolution closes the auction, records a pending handle under
// offset and submits the computation. It returns as soon as the backend
// accepted the request.
//
// Registry preconditions are checked first (ErrAuctionNotFound,
// ErrAuctionClosed, ErrNotEnoughBids), then ErrDuplicateOffset and
// ErrNonceReused. None of those failures changes any state. If the backend
// rejects the request the handle is aborted and ErrSubmissionFailed is
// returned along with it.
func (d *Dispatcher) RequestResolution(ctx context.Context, auctionID types.AuctionID, offset uint64, enc types.EncryptionContext) (*types.ComputationHandle, error) {
	d.mu.Lock()
	var handle *types.ComputationHandle
	_, err := d.registry.BeginResolution(auctionID, func(tx *storage.Tx, snap *registry.Snapshot) error {
		exists, err := tx.HasComputation(offset)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %d", ErrDuplicateOffset, offset)
		}
		used, err := tx.NonceUsed(enc.PublicKey, enc.Nonce)
		if err != nil {
			return err
		}
		if used {
			return ErrNonceReused
		}

		now := d.now().Unix()
		args := BuildArguments(enc, snap.Bids)
		handle = &types.ComputationHandle{
			Offset:           offset,
			AuctionID:        auctionID,
			DefinitionOffset: tournament.DefinitionOffset(len(snap.Bids)),
			Cluster:          d.cluster,
			Encryption:       enc,
			Snapshot:         snap.Bids,
			InputsHash:       types.InputsHash(args),
			Status:           types.ComputationPending,
			CreatedAt:        now,
		}
		if err := tx.CreateComputation(handle); err != nil {
			return err
		}
		return tx.MarkNonceUsed(enc.PublicKey, enc.Nonce, offset, now)
	})
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req := &types.ComputationRequest{
		Offset:           handle.Offset,
		DefinitionOffset: handle.DefinitionOffset,
		Arguments:        BuildArguments(enc, handle.Snapshot),
	}
	if err := d.backend.Submit(ctx, req); err != nil {
		reason := fmt.Sprintf("submission failed: %v", err)
		if abortErr := d.abort(offset, reason); abortErr != nil {
			log.Warnw("failed to abort computation", "offset", offset, "error", abortErr)
		}
		handle.Status = types.ComputationAborted
		handle.AbortReason = reason
		return handle, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	log.Infow("resolution dispatched",
		"auctionID", auctionID.String(),
		"offset", offset,
		"definition", handle.DefinitionOffset,
		"slots", len(handle.Snapshot))
	return handle, nil
}

// Computation returns the handle recorded under offset.
func (d *Dispatcher) Computation(offset uint64) (*types.ComputationHandle, error) {
	h, err := d.storage.Computation(offset)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownComputation, offset)
		}
		return nil, err
	}
	return h, nil
}

func (d *Dispatcher) abortInStorage(offset uint64, reason string) error {
	return d.storage.UpdateComputation(offset,
		storage.ComputationUpdateCallbackFinalize(types.ComputationAborted, reason, d.now().Unix()))
}
