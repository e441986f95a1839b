// Package settlement consumes the signed outputs of resolution computations.
// Each pending handle moves exactly once to Verified, storing a settlement
// record, or to Aborted. Both outcomes are published on a Feed.
package settlement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

var (
	ErrUnknownComputation = errors.New("unknown computation")
	ErrReplayedCallback   = errors.New("computation already finalized")
	ErrAbortedComputation = errors.New("computation aborted")
)

// Config holds the settler dependencies.
type Config struct {
	// Verifier authenticates output signatures. Defaults to
	// EthereumVerifier.
	Verifier SignatureVerifier
	// Artifacts provides verifying keys for output proofs. Proofs are
	// checked whenever a verifying key is available for the slot count.
	Artifacts *tournament.ArtifactSet
	// RequireProof aborts outputs that carry no verified proof.
	RequireProof bool
}

// Settler verifies and settles computation outputs.
type Settler struct {
	storage      *storage.Storage
	verifier     SignatureVerifier
	artifacts    *tournament.ArtifactSet
	requireProof bool
	feed         *Feed
	now          func() time.Time
}

// New returns a settler over stg.
func New(stg *storage.Storage, conf Config) (*Settler, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if conf.RequireProof && conf.Artifacts == nil {
		return nil, fmt.Errorf("requiring proofs needs circuit artifacts")
	}
	verifier := conf.Verifier
	if verifier == nil {
		verifier = EthereumVerifier{}
	}
	return &Settler{
		storage:      stg,
		verifier:     verifier,
		artifacts:    conf.Artifacts,
		requireProof: conf.RequireProof,
		feed:         NewFeed(),
		now:          time.Now,
	}, nil
}

// Feed returns the event feed.
func (s *Settler) Feed() *Feed {
	return s.feed
}

// OnCallback processes the output of the computation at out.Offset.
//
// An unknown offset fails with ErrUnknownComputation and a handle already
// Verified or Aborted fails with ErrReplayedCallback; neither changes any
// state or publishes an event. An output that does not authenticate, or
// reports a failure, aborts the handle and fails with
// ErrAbortedComputation. Otherwise the handle is verified and the
// settlement record returned.
func (s *Settler) OnCallback(_ context.Context, out *types.SignedOutput) (*types.SettlementRecord, error) {
	h, err := s.storage.Computation(out.Offset)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownComputation, out.Offset)
		}
		return nil, err
	}
	if h.Status.Terminal() {
		return nil, fmt.Errorf("%w: %d is %s", ErrReplayedCallback, h.Offset, h.Status)
	}

	if err := s.authenticate(h, out); err != nil {
		if abortErr := s.Abort(h.Offset, err.Error()); abortErr != nil {
			return nil, abortErr
		}
		return nil, fmt.Errorf("%w: %v", ErrAbortedComputation, err)
	}

	winnerIndex, winningBid := out.WinnerIndex(), out.WinningBid()
	var rec *types.SettlementRecord
	err = s.storage.Update(func(tx *storage.Tx) error {
		// re-read under the storage lock so concurrent callbacks settle once
		h, err := tx.Computation(out.Offset)
		if err != nil {
			return err
		}
		if h.Status.Terminal() {
			return fmt.Errorf("%w: %d is %s", ErrReplayedCallback, h.Offset, h.Status)
		}
		a, err := tx.Auction(h.AuctionID)
		if err != nil {
			return fmt.Errorf("load auction %s: %w", h.AuctionID, err)
		}
		winner, _ := a.Bidder(int(winnerIndex))
		now := s.now().Unix()
		rec = &types.SettlementRecord{
			AuctionID:       h.AuctionID,
			Offset:          h.Offset,
			WinnerIndex:     winnerIndex,
			WinningBid:      winningBid,
			Winner:          winner,
			EncryptedResult: out.Encrypted,
			ResultNonce:     out.ResultNonce,
			SettledAt:       now,
		}
		if err := tx.CreateSettlement(rec); err != nil {
			return err
		}
		if err := storage.ComputationUpdateCallbackFinalize(types.ComputationVerified, "", now)(h); err != nil {
			return err
		}
		return tx.SetComputation(h)
	})
	if err != nil {
		return nil, err
	}

	log.Infow("auction settled",
		"auctionID", rec.AuctionID.String(),
		"offset", rec.Offset,
		"winnerIndex", rec.WinnerIndex,
		"winningBid", rec.WinningBid)
	s.feed.Publish(Event{
		Kind:        EventSettled,
		AuctionID:   rec.AuctionID,
		Offset:      rec.Offset,
		WinnerIndex: rec.WinnerIndex,
		WinningBid:  rec.WinningBid,
	})
	return rec, nil
}

// Abort moves the pending handle at offset to Aborted and publishes an
// abort event. It fails with ErrReplayedCallback if the handle is already
// terminal.
func (s *Settler) Abort(offset uint64, reason string) error {
	var h *types.ComputationHandle
	err := s.storage.Update(func(tx *storage.Tx) error {
		var err error
		if h, err = tx.Computation(offset); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrUnknownComputation, offset)
			}
			return err
		}
		if h.Status.Terminal() {
			return fmt.Errorf("%w: %d is %s", ErrReplayedCallback, h.Offset, h.Status)
		}
		if err := storage.ComputationUpdateCallbackFinalize(types.ComputationAborted, reason, s.now().Unix())(h); err != nil {
			return err
		}
		return tx.SetComputation(h)
	})
	if err != nil {
		return err
	}
	log.Warnw("computation aborted", "auctionID", h.AuctionID.String(), "offset", offset, "reason", reason)
	s.feed.Publish(Event{
		Kind:      EventAborted,
		AuctionID: h.AuctionID,
		Offset:    offset,
		Reason:    reason,
	})
	return nil
}

// authenticate checks out against the handle it claims to answer.
func (s *Settler) authenticate(h *types.ComputationHandle, out *types.SignedOutput) error {
	if err := s.verifier.Verify(out.SigningPayload(), out.Signature, h.Cluster); err != nil {
		return fmt.Errorf("invalid output signature: %w", err)
	}
	if out.Offset != h.Offset {
		return fmt.Errorf("offset mismatch: got %d, want %d", out.Offset, h.Offset)
	}
	if out.DefinitionOffset != h.DefinitionOffset {
		return fmt.Errorf("definition mismatch: got %d, want %d", out.DefinitionOffset, h.DefinitionOffset)
	}
	if !bytes.Equal(out.InputsHash, h.InputsHash) {
		return fmt.Errorf("inputs hash mismatch")
	}
	if out.Failure != "" {
		return fmt.Errorf("cluster reported failure: %s", out.Failure)
	}
	if want := h.Encryption.Nonce.Next(); out.ResultNonce != want {
		return fmt.Errorf("result nonce mismatch")
	}
	slots := uint64(len(h.Snapshot))
	if out.WinnerIndex() >= slots {
		return fmt.Errorf("winner index %d out of range [0, %d)", out.WinnerIndex(), slots)
	}
	if h.Snapshot[out.WinnerIndex()].IsSentinel() {
		return fmt.Errorf("winner index %d is an empty slot", out.WinnerIndex())
	}
	return s.verifyProof(h, out)
}

func (s *Settler) verifyProof(h *types.ComputationHandle, out *types.SignedOutput) error {
	if s.artifacts == nil {
		return nil
	}
	if len(out.Proof) == 0 {
		if s.requireProof {
			return fmt.Errorf("missing proof")
		}
		return nil
	}
	a, err := s.artifacts.Get(len(h.Snapshot))
	if err != nil {
		return err
	}
	if !a.CanVerify() {
		if s.requireProof {
			return fmt.Errorf("no verifying key for %d slots", len(h.Snapshot))
		}
		log.Debugw("skipping proof verification, no verifying key", "offset", h.Offset)
		return nil
	}
	if len(out.BidsCommitment) == 0 {
		return fmt.Errorf("proof without bids commitment")
	}
	public := tournament.PublicAssignment(len(h.Snapshot), out.BidsCommitment, out.WinnerIndex(), out.WinningBid())
	if err := a.Verify(out.Proof, public); err != nil {
		return fmt.Errorf("invalid proof: %w", err)
	}
	return nil
}
