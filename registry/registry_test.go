package registry

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/db/metadb"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

var authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newTestRegistry(t *testing.T, conf Config) *Registry {
	t.Helper()
	r, err := New(storage.New(metadb.NewTest(t)), conf)
	qt.Assert(t, err, qt.IsNil)
	return r
}

func bidder(i int) common.Address {
	return common.BytesToAddress([]byte{0xb0, byte(i)})
}

func ciphertext(b byte) types.Ciphertext {
	return types.Ciphertext{b, 0xff}
}

func TestCreate(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(t, Config{})

	a, err := r.Create(authority, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(a.ID, qt.Equals, types.DeriveAuctionID(authority))
	c.Assert(a.IsOpen, qt.IsTrue)
	c.Assert(a.BidCount, qt.Equals, 0)
	c.Assert(a.MaxBidders, qt.Equals, 4)
	for i := range a.MaxBidders {
		c.Assert(a.EncryptedBids[i].IsSentinel(), qt.IsTrue)
		c.Assert(a.BidderKeys[i], qt.Equals, common.Address{})
	}

	_, err = r.Create(authority, 0)
	c.Assert(err, qt.ErrorIs, ErrAuctionExists)

	other := common.HexToAddress("0xa2")
	_, err = r.Create(other, 1)
	c.Assert(err, qt.ErrorIs, ErrInvalidMaxBidders)
	_, err = r.Create(other, 65)
	c.Assert(err, qt.ErrorIs, ErrInvalidMaxBidders)

	a, err = r.Create(other, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(a.EncryptedBids, qt.HasLen, 2)

	ids, err := r.Auctions()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.HasLen, 2)
	c.Assert(ids, qt.Contains, types.DeriveAuctionID(authority))
	c.Assert(ids, qt.Contains, a.ID)

	_, err = New(storage.New(metadb.NewTest(t)), Config{MaxBidders: 100})
	c.Assert(err, qt.ErrorIs, ErrInvalidMaxBidders)
}

func TestPlaceBid(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(t, Config{MaxBidders: 2})

	a, err := r.Create(authority, 0)
	c.Assert(err, qt.IsNil)

	_, err = r.PlaceBid(a.ID, bidder(0), types.Ciphertext{})
	c.Assert(err, qt.ErrorIs, ErrInvalidCiphertext)

	for i := range 2 {
		slot, err := r.PlaceBid(a.ID, bidder(i), ciphertext(byte(i+1)))
		c.Assert(err, qt.IsNil)
		c.Assert(slot, qt.Equals, i)
	}

	_, err = r.PlaceBid(a.ID, bidder(2), ciphertext(9))
	c.Assert(err, qt.ErrorIs, ErrAuctionFull)

	got, err := r.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.BidCount, qt.Equals, 2)
	c.Assert(got.EncryptedBids, qt.DeepEquals, []types.Ciphertext{ciphertext(1), ciphertext(2)})
	c.Assert(got.BidderKeys, qt.DeepEquals, []common.Address{bidder(0), bidder(1)})

	_, err = r.PlaceBid(types.DeriveAuctionID(common.Address{}), bidder(0), ciphertext(1))
	c.Assert(err, qt.ErrorIs, ErrAuctionNotFound)
}

func TestBeginResolution(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(t, Config{})

	a, err := r.Create(authority, 0)
	c.Assert(err, qt.IsNil)

	// zero or one bid cannot be compared and the auction stays open
	_, err = r.BeginResolution(a.ID)
	c.Assert(err, qt.ErrorIs, ErrNotEnoughBids)
	_, err = r.PlaceBid(a.ID, bidder(0), ciphertext(1))
	c.Assert(err, qt.IsNil)
	_, err = r.BeginResolution(a.ID)
	c.Assert(err, qt.ErrorIs, ErrNotEnoughBids)
	got, err := r.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.IsOpen, qt.IsTrue)

	_, err = r.PlaceBid(a.ID, bidder(1), ciphertext(2))
	c.Assert(err, qt.IsNil)

	// a failing hook rolls the close back
	errHook := errors.New("hook failed")
	_, err = r.BeginResolution(a.ID, func(*storage.Tx, *Snapshot) error { return errHook })
	c.Assert(err, qt.ErrorIs, errHook)
	got, err = r.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.IsOpen, qt.IsTrue)

	var hooked *Snapshot
	snap, err := r.BeginResolution(a.ID, func(_ *storage.Tx, s *Snapshot) error {
		hooked = s
		return nil
	})
	c.Assert(err, qt.IsNil)
	c.Assert(hooked, qt.Equals, snap)
	c.Assert(snap.BidCount, qt.Equals, 2)
	c.Assert(snap.MaxBidders, qt.Equals, 4)
	c.Assert(snap.Bids, qt.DeepEquals, []types.Ciphertext{ciphertext(1), ciphertext(2), {}, {}})

	got, err = r.Auction(a.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.IsOpen, qt.IsFalse)
	c.Assert(got.ClosedAt, qt.Not(qt.Equals), int64(0))

	_, err = r.BeginResolution(a.ID)
	c.Assert(err, qt.ErrorIs, ErrAuctionClosed)
	_, err = r.PlaceBid(a.ID, bidder(2), ciphertext(3))
	c.Assert(err, qt.ErrorIs, ErrAuctionClosed)
}

func TestStateTransitionsLeaveStateOnError(t *testing.T) {
	c := qt.New(t)

	a := types.NewAuctionState(authority, 2, 0)
	_, err := placeBid(a, bidder(0), ciphertext(1))
	c.Assert(err, qt.IsNil)
	_, err = beginResolution(a, 1)
	c.Assert(err, qt.ErrorIs, ErrNotEnoughBids)
	c.Assert(a.IsOpen, qt.IsTrue)
	c.Assert(a.ClosedAt, qt.Equals, int64(0))

	_, err = placeBid(a, bidder(1), ciphertext(2))
	c.Assert(err, qt.IsNil)
	before := append([]types.Ciphertext(nil), a.EncryptedBids...)
	_, err = placeBid(a, bidder(2), ciphertext(3))
	c.Assert(err, qt.ErrorIs, ErrAuctionFull)
	c.Assert(a.EncryptedBids, qt.DeepEquals, before)
	c.Assert(a.BidCount, qt.Equals, 2)
}
