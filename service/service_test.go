package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/backend"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/crypto/sealed"
	"github.com/vocdoni/sealbid-node/crypto/signatures/ethereum"
	"github.com/vocdoni/sealbid-node/db/metadb"
	"github.com/vocdoni/sealbid-node/settlement"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

// newLocalNode wires an auctioneer to an in-process cluster that calls it
// back directly.
func newLocalNode(t *testing.T) (*Auctioneer, *ClusterService) {
	c := qt.New(t)
	signer, err := ethereum.NewSigner()
	c.Assert(err, qt.IsNil)
	keys, err := sealed.GenerateKeyPair()
	c.Assert(err, qt.IsNil)

	var auctioneer *Auctioneer
	cluster, err := NewCluster(backend.Config{
		Signer: signer,
		Keys:   keys,
		Callback: backend.CallbackFunc(func(ctx context.Context, out *types.SignedOutput) error {
			return auctioneer.Deliver(ctx, out)
		}),
	})
	c.Assert(err, qt.IsNil)
	auctioneer, err = NewAuctioneer(storage.New(metadb.NewTest(t)), cluster, AuctioneerConfig{
		Cluster: cluster.Address(),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(cluster.Start(context.Background()), qt.IsNil)
	t.Cleanup(cluster.Stop)
	return auctioneer, cluster
}

func TestAuctioneerEndToEnd(t *testing.T) {
	c := qt.New(t)
	auctioneer, cluster := newLocalNode(t)
	_, events := auctioneer.Settler.Feed().Subscribe(4)

	authority := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	auction, err := auctioneer.CreateAuction(authority, 0)
	c.Assert(err, qt.IsNil)

	requester, err := sealed.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	cipher, err := requester.Cipher(cluster.PublicKey())
	c.Assert(err, qt.IsNil)
	nonce := types.NewNonce(3, 3)
	cts, err := cipher.EncryptAll([]uint64{10, 40, 25, 40}, nonce)
	c.Assert(err, qt.IsNil)
	for i, ct := range cts {
		slot, err := auctioneer.PlaceBid(auction.ID, common.BytesToAddress([]byte{0xb0, byte(i)}), ct)
		c.Assert(err, qt.IsNil)
		c.Assert(slot, qt.Equals, i)
	}

	h, err := auctioneer.ResolveAuction(context.Background(), auction.ID, 11,
		types.EncryptionContext{PublicKey: requester.Public, Nonce: nonce})
	c.Assert(err, qt.IsNil)
	c.Assert(h.Status, qt.Equals, types.ComputationPending)

	select {
	case ev := <-events:
		c.Assert(ev.Kind, qt.Equals, settlement.EventSettled)
		c.Assert(ev.WinnerIndex, qt.Equals, uint64(1))
		c.Assert(ev.WinningBid, qt.Equals, uint64(40))
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for settlement")
	}

	rec, err := auctioneer.Settlement(auction.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Winner, qt.Equals, common.BytesToAddress([]byte{0xb0, 1}))
	idx, bid, err := cipher.OpenResult(rec.EncryptedResult, rec.ResultNonce)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, uint64(1))
	c.Assert(bid, qt.Equals, uint64(40))

	// delivering the same computation again is a permanent rejection
	err = auctioneer.Deliver(context.Background(), &types.SignedOutput{Offset: 11})
	c.Assert(errors.Is(err, backend.ErrCallbackRejected), qt.IsTrue)
}

type silentBackend struct{}

func (silentBackend) Submit(context.Context, *types.ComputationRequest) error { return nil }

func TestComputationMonitorAbortsExpired(t *testing.T) {
	c := qt.New(t)
	auctioneer, err := NewAuctioneer(storage.New(metadb.NewTest(t)), silentBackend{}, AuctioneerConfig{
		Cluster: common.HexToAddress("0xc1"),
	})
	c.Assert(err, qt.IsNil)

	auction, err := auctioneer.CreateAuction(common.HexToAddress("0xa1"), 2)
	c.Assert(err, qt.IsNil)
	for i := range 2 {
		_, err := auctioneer.PlaceBid(auction.ID, common.BytesToAddress([]byte{byte(i + 1)}), types.Ciphertext{byte(i + 1)})
		c.Assert(err, qt.IsNil)
	}
	_, err = auctioneer.ResolveAuction(context.Background(), auction.ID, 1,
		types.EncryptionContext{PublicKey: types.PublicKey{1}, Nonce: types.NewNonce(0, 1)})
	c.Assert(err, qt.IsNil)

	monitor := NewComputationMonitor(auctioneer, time.Hour, time.Minute)
	aborted, err := monitor.AbortExpired()
	c.Assert(err, qt.IsNil)
	c.Assert(aborted, qt.Equals, 0)

	monitor.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	aborted, err = monitor.AbortExpired()
	c.Assert(err, qt.IsNil)
	c.Assert(aborted, qt.Equals, 1)
	h, err := auctioneer.Dispatcher.Computation(1)
	c.Assert(err, qt.IsNil)
	c.Assert(h.Status, qt.Equals, types.ComputationAborted)
	c.Assert(h.AbortReason, qt.Equals, "no callback after 1m0s")

	// nothing left to abort
	aborted, err = monitor.AbortExpired()
	c.Assert(err, qt.IsNil)
	c.Assert(aborted, qt.Equals, 0)
}

func TestComputationMonitorLifecycle(t *testing.T) {
	c := qt.New(t)
	auctioneer, err := NewAuctioneer(storage.New(metadb.NewTest(t)), silentBackend{}, AuctioneerConfig{Cluster: common.HexToAddress("0xc1")})
	c.Assert(err, qt.IsNil)

	monitor := NewComputationMonitor(auctioneer, 10*time.Millisecond, 0)
	c.Assert(monitor.Start(context.Background()), qt.IsNil)
	c.Assert(monitor.Start(context.Background()), qt.ErrorMatches, "service already running")
	c.Assert(auctioneer.Settler.Feed().Subscribers(), qt.Equals, 1)
	monitor.Stop()
	c.Assert(auctioneer.Settler.Feed().Subscribers(), qt.Equals, 0)
	monitor.Stop()

	c.Assert(NewComputationMonitor(auctioneer, 0, 0).Start(context.Background()), qt.IsNotNil)
}

func TestAPIServiceLifecycle(t *testing.T) {
	c := qt.New(t)
	auctioneer, err := NewAuctioneer(storage.New(metadb.NewTest(t)), silentBackend{}, AuctioneerConfig{Cluster: common.HexToAddress("0xc1")})
	c.Assert(err, qt.IsNil)

	as := NewAPI(auctioneer, "127.0.0.1", 0, true)
	as.SetClusterInfo(common.HexToAddress("0xc1"), types.PublicKey{1}, "seed")
	c.Assert(as.Start(context.Background()), qt.IsNil)
	c.Assert(as.API, qt.IsNotNil)
	c.Assert(as.Start(context.Background()), qt.ErrorMatches, "service already running")
	as.Stop()
	as.Stop()
}

func TestPrepareArtifacts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping circuit compilation in short mode")
	}
	c := qt.New(t)
	set := tournament.NewArtifactSet(false)
	c.Assert(PrepareArtifacts(set, time.Minute, 2, 3), qt.IsNil)
	a, err := set.Get(3)
	c.Assert(err, qt.IsNil)
	c.Assert(a.CanProve(), qt.IsFalse)
	blinding, err := tournament.RandomBlinding()
	c.Assert(err, qt.IsNil)
	c.Assert(a.IsSolved(tournament.Assignment([]uint64{1, 5, 2}, blinding)), qt.IsNil)
}
