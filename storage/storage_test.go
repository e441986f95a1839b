package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/db/metadb"
	"github.com/vocdoni/sealbid-node/types"
)

var authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	return New(metadb.NewTest(t))
}

func TestAuctionLifecycle(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	a := types.NewAuctionState(authority, 4, 100)
	c.Assert(st.Update(func(tx *Tx) error { return tx.CreateAuction(a) }), qt.IsNil)

	err := st.Update(func(tx *Tx) error { return tx.CreateAuction(a) })
	c.Assert(err, qt.ErrorIs, ErrKeyAlreadyExists)

	got, err := st.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.ID, qt.Equals, a.ID)
	c.Assert(got.IsOpen, qt.IsTrue)
	c.Assert(got.EncryptedBids, qt.HasLen, 4)
	c.Assert(got.Authority, qt.Equals, authority)

	ct := types.Ciphertext{1, 2, 3}
	c.Assert(st.Update(func(tx *Tx) error {
		rec, err := tx.Auction(a.ID)
		if err != nil {
			return err
		}
		rec.EncryptedBids[rec.BidCount] = ct
		rec.BidCount++
		return tx.SetAuction(rec)
	}), qt.IsNil)

	// a failing transaction leaves the record untouched
	errStop := errors.New("stop")
	err = st.Update(func(tx *Tx) error {
		rec, err := tx.Auction(a.ID)
		if err != nil {
			return err
		}
		rec.BidCount = 4
		if err := tx.SetAuction(rec); err != nil {
			return err
		}
		return errStop
	})
	c.Assert(err, qt.ErrorIs, errStop)

	got, err = st.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.BidCount, qt.Equals, 1)
	c.Assert(got.EncryptedBids[0], qt.Equals, ct)

	ids, err := st.ListAuctions()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.DeepEquals, []types.AuctionID{a.ID})

	_, err = st.Auction(types.DeriveAuctionID(common.Address{}))
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestUpdateIsAtomic(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	a := types.NewAuctionState(authority, 2, 100)
	c.Assert(st.Update(func(tx *Tx) error { return tx.CreateAuction(a) }), qt.IsNil)

	pub := types.PublicKey{7}
	nonce := types.NewNonce(0, 1)
	h := &types.ComputationHandle{Offset: 9, AuctionID: a.ID}

	// all writes are dropped when the nonce was already consumed
	c.Assert(st.Update(func(tx *Tx) error { return tx.MarkNonceUsed(pub, nonce, 1, 100) }), qt.IsNil)
	err := st.Update(func(tx *Tx) error {
		a.IsOpen = false
		if err := tx.SetAuction(a); err != nil {
			return err
		}
		if err := tx.CreateComputation(h); err != nil {
			return err
		}
		return tx.MarkNonceUsed(pub, nonce, h.Offset, 100)
	})
	c.Assert(err, qt.ErrorIs, ErrKeyAlreadyExists)

	got, err := st.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.IsOpen, qt.IsTrue)
	_, err = st.Computation(h.Offset)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	// reads inside a transaction see its own writes
	c.Assert(st.Update(func(tx *Tx) error {
		if err := tx.CreateComputation(h); err != nil {
			return err
		}
		exists, err := tx.HasComputation(h.Offset)
		c.Assert(err, qt.IsNil)
		c.Assert(exists, qt.IsTrue)
		return nil
	}), qt.IsNil)

	c.Assert(st.Update(func(tx *Tx) error {
		used, err := tx.NonceUsed(pub, nonce)
		c.Assert(err, qt.IsNil)
		c.Assert(used, qt.IsTrue)
		used, err = tx.NonceUsed(pub, nonce.Next())
		c.Assert(err, qt.IsNil)
		c.Assert(used, qt.IsFalse)
		used, err = tx.NonceUsed(types.PublicKey{8}, nonce)
		c.Assert(err, qt.IsNil)
		c.Assert(used, qt.IsFalse)
		return nil
	}), qt.IsNil)
}

func TestComputations(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	for _, off := range []uint64{300, 2, 1 << 40} {
		h := &types.ComputationHandle{Offset: off, Status: types.ComputationPending, InputsHash: types.HexBytes{1}}
		c.Assert(st.Update(func(tx *Tx) error { return tx.CreateComputation(h) }), qt.IsNil)
	}
	err := st.Update(func(tx *Tx) error {
		return tx.CreateComputation(&types.ComputationHandle{Offset: 2})
	})
	c.Assert(err, qt.ErrorIs, ErrKeyAlreadyExists)

	c.Assert(st.UpdateComputation(300,
		ComputationUpdateCallbackFinalize(types.ComputationAborted, "bad signature", 5)), qt.IsNil)
	// terminal handles cannot transition again
	c.Assert(st.UpdateComputation(300,
		ComputationUpdateCallbackFinalize(types.ComputationVerified, "", 6)), qt.IsNotNil)

	h, err := st.Computation(300)
	c.Assert(err, qt.IsNil)
	c.Assert(h.Status, qt.Equals, types.ComputationAborted)
	c.Assert(h.AbortReason, qt.Equals, "bad signature")
	c.Assert(h.FinalizedAt, qt.Equals, int64(5))

	all, err := st.ListComputations()
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 3)
	c.Assert(all[0].Offset, qt.Equals, uint64(2))
	c.Assert(all[1].Offset, qt.Equals, uint64(300))
	c.Assert(all[2].Offset, qt.Equals, uint64(1<<40))

	pending, err := st.ListComputations(types.ComputationPending)
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.HasLen, 2)

	_, err = st.Computation(1)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(st.UpdateComputation(1, ComputationUpdateCallbackFinalize(types.ComputationVerified, "", 1)),
		qt.ErrorIs, ErrNotFound)
}

func TestSettlements(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	id := types.DeriveAuctionID(authority)
	_, err := st.Settlement(id)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	rec := &types.SettlementRecord{
		AuctionID:   id,
		Offset:      1,
		WinnerIndex: 1,
		WinningBid:  40,
		Winner:      common.HexToAddress("0xb1"),
		ResultNonce: types.NewNonce(0, 2),
		SettledAt:   10,
	}
	c.Assert(st.Update(func(tx *Tx) error { return tx.CreateSettlement(rec) }), qt.IsNil)
	err = st.Update(func(tx *Tx) error { return tx.CreateSettlement(rec) })
	c.Assert(err, qt.ErrorIs, ErrKeyAlreadyExists)

	got, err := st.Settlement(id)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, rec)

	// served from the database once the cache is gone
	st.cache.Purge()
	got, err = st.Settlement(id)
	c.Assert(err, qt.IsNil)
	c.Assert(got.WinningBid, qt.Equals, uint64(40))
	c.Assert(got.Winner, qt.Equals, rec.Winner)
	c.Assert(got.ResultNonce, qt.Equals, rec.ResultNonce)
}

func TestPersistence(t *testing.T) {
	c := qt.New(t)
	dir := filepath.Join(t.TempDir(), "db")

	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	st := New(database)
	a := types.NewAuctionState(authority, 3, 1)
	c.Assert(st.Update(func(tx *Tx) error { return tx.CreateAuction(a) }), qt.IsNil)
	h := &types.ComputationHandle{Offset: 1, AuctionID: a.ID, Status: types.ComputationPending}
	c.Assert(st.Update(func(tx *Tx) error { return tx.CreateComputation(h) }), qt.IsNil)
	st.Close()

	database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	st = New(database)
	defer st.Close()

	got, err := st.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.MaxBidders, qt.Equals, 3)
	pending, err := st.ListComputations(types.ComputationPending)
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.HasLen, 1)
	c.Assert(pending[0].AuctionID, qt.Equals, a.ID)
}
