package storage

import (
	"github.com/vocdoni/sealbid-node/types"
)

// Settlement returns the settlement record of an auction, ErrNotFound if the
// auction has not settled.
func (s *Storage) Settlement(id types.AuctionID) (*types.SettlementRecord, error) {
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	rec := &types.SettlementRecord{}
	if err := getArtifact(s.db, settlementPrefix, settlementKey(id), rec); err != nil {
		return nil, err
	}
	s.cache.Add(id, rec)
	return rec, nil
}

