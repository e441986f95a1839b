package storage

import (
	"github.com/vocdoni/sealbid-node/types"
)

// Auction returns the auction stored under id, ErrNotFound if missing.
func (s *Storage) Auction(id types.AuctionID) (*types.AuctionState, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	a := &types.AuctionState{}
	if err := getArtifact(s.db, auctionPrefix, auctionKey(id), a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAuctions returns the ids of all stored auctions.
func (s *Storage) ListAuctions() ([]types.AuctionID, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	var ids []types.AuctionID
	if err := listArtifacts(s.db, auctionPrefix, func(k, _ []byte) bool {
		var id types.AuctionID
		copy(id[:], k)
		ids = append(ids, id)
		return true
	}); err != nil {
		return nil, err
	}
	return ids, nil
}
