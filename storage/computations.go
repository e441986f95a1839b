package storage

import (
	"fmt"

	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

// Computation returns the handle stored under offset, ErrNotFound if
// missing.
func (s *Storage) Computation(offset uint64) (*types.ComputationHandle, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	h := &types.ComputationHandle{}
	if err := getArtifact(s.db, computationPrefix, computationKey(offset), h); err != nil {
		return nil, err
	}
	return h, nil
}

// UpdateComputation loads the handle, applies the update functions in order
// and writes it back atomically.
func (s *Storage) UpdateComputation(offset uint64, updateFunc ...func(*types.ComputationHandle) error) error {
	if len(updateFunc) == 0 {
		return fmt.Errorf("no update function provided")
	}
	return s.Update(func(tx *Tx) error {
		h, err := tx.Computation(offset)
		if err != nil {
			return fmt.Errorf("failed to get computation for update: %w", err)
		}
		for _, f := range updateFunc {
			if err := f(h); err != nil {
				return err
			}
		}
		return tx.SetComputation(h)
	})
}

// ListComputations returns the handles with any of the given statuses, all
// of them if none is given, ordered by offset.
func (s *Storage) ListComputations(status ...types.ComputationStatus) ([]*types.ComputationHandle, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	var handles []*types.ComputationHandle
	if err := listArtifacts(s.db, computationPrefix, func(k, v []byte) bool {
		h := &types.ComputationHandle{}
		if err := DecodeArtifact(v, h); err != nil {
			log.Warnw("skipping undecodable computation", "offset", offsetFromKey(k), "error", err)
			return true
		}
		if len(status) == 0 {
			handles = append(handles, h)
			return true
		}
		for _, st := range status {
			if h.Status == st {
				handles = append(handles, h)
				break
			}
		}
		return true
	}); err != nil {
		return nil, err
	}
	return handles, nil
}

// ComputationUpdateCallbackFinalize returns a function that moves a pending
// handle to a terminal status.
func ComputationUpdateCallbackFinalize(status types.ComputationStatus, reason string, at int64) func(*types.ComputationHandle) error {
	return func(h *types.ComputationHandle) error {
		if h.Status.Terminal() {
			return fmt.Errorf("computation %d already %s", h.Offset, h.Status)
		}
		h.Status = status
		h.AbortReason = reason
		h.FinalizedAt = at
		return nil
	}
}
