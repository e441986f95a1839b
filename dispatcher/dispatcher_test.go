package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/db/metadb"
	"github.com/vocdoni/sealbid-node/registry"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

var cluster = common.HexToAddress("0x00000000000000000000000000000000000000c1")

type fakeBackend struct {
	mu   sync.Mutex
	reqs []*types.ComputationRequest
	err  error
}

func (b *fakeBackend) Submit(_ context.Context, req *types.ComputationRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.reqs = append(b.reqs, req)
	return nil
}

type testEnv struct {
	stg      *storage.Storage
	registry *registry.Registry
	backend  *fakeBackend
	d        *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	reg, err := registry.New(stg, registry.Config{})
	c.Assert(err, qt.IsNil)
	backend := &fakeBackend{}
	d, err := New(stg, reg, backend, Config{Cluster: cluster})
	c.Assert(err, qt.IsNil)
	return &testEnv{stg: stg, registry: reg, backend: backend, d: d}
}

// openAuction creates an auction for authority with the given number of bids.
func (e *testEnv) openAuction(c *qt.C, authority common.Address, bids int) types.AuctionID {
	a, err := e.registry.Create(authority, 0)
	c.Assert(err, qt.IsNil)
	for i := range bids {
		_, err := e.registry.PlaceBid(a.ID, common.BytesToAddress([]byte{0xb0, byte(i)}), types.Ciphertext{byte(i + 1)})
		c.Assert(err, qt.IsNil)
	}
	return a.ID
}

func encContext(key byte, nonce uint64) types.EncryptionContext {
	return types.EncryptionContext{PublicKey: types.PublicKey{key}, Nonce: types.NewNonce(0, nonce)}
}

func TestArguments(t *testing.T) {
	c := qt.New(t)

	enc := types.EncryptionContext{PublicKey: types.PublicKey{1, 2, 3}, Nonce: types.NewNonce(5, 7)}
	bids := []types.Ciphertext{{1}, {2}, {}}
	args := BuildArguments(enc, bids)
	c.Assert(args, qt.HasLen, 5)
	c.Assert(args[0].Kind, qt.Equals, types.ArgX25519PublicKey)
	c.Assert(args[1].Kind, qt.Equals, types.ArgPlaintextU128)
	// little endian: low word first
	c.Assert(args[1].Data[0], qt.Equals, byte(7))
	c.Assert(args[1].Data[8], qt.Equals, byte(5))
	for _, a := range args[2:] {
		c.Assert(a.Kind, qt.Equals, types.ArgEncryptedU64)
	}

	gotEnc, gotBids, err := ParseArguments(args)
	c.Assert(err, qt.IsNil)
	c.Assert(gotEnc, qt.Equals, enc)
	c.Assert(gotBids, qt.DeepEquals, bids)

	_, _, err = ParseArguments(args[:3])
	c.Assert(err, qt.IsNotNil)
	args[0], args[1] = args[1], args[0]
	_, _, err = ParseArguments(args)
	c.Assert(err, qt.IsNotNil)
}

func TestRequestResolution(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	id := e.openAuction(c, common.HexToAddress("0xa1"), 2)
	enc := encContext(1, 1)

	h, err := e.d.RequestResolution(ctx, id, 42, enc)
	c.Assert(err, qt.IsNil)
	c.Assert(h.Status, qt.Equals, types.ComputationPending)
	c.Assert(h.Cluster, qt.Equals, cluster)
	c.Assert(h.DefinitionOffset, qt.Equals, tournament.DefinitionOffset(4))
	c.Assert(h.Snapshot, qt.DeepEquals, []types.Ciphertext{{1}, {2}, {}, {}})

	c.Assert(e.backend.reqs, qt.HasLen, 1)
	req := e.backend.reqs[0]
	c.Assert(req.Offset, qt.Equals, uint64(42))
	c.Assert(req.InputsHash(), qt.DeepEquals, h.InputsHash)
	gotEnc, bids, err := ParseArguments(req.Arguments)
	c.Assert(err, qt.IsNil)
	c.Assert(gotEnc, qt.Equals, enc)
	c.Assert(bids, qt.DeepEquals, h.Snapshot)

	stored, err := e.d.Computation(42)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.AuctionID, qt.Equals, id)

	a, err := e.registry.Auction(id)
	c.Assert(err, qt.IsNil)
	c.Assert(a.IsOpen, qt.IsFalse)

	// second request for the same auction
	_, err = e.d.RequestResolution(ctx, id, 43, encContext(1, 2))
	c.Assert(err, qt.ErrorIs, registry.ErrAuctionClosed)
	c.Assert(e.backend.reqs, qt.HasLen, 1)

	_, err = e.d.Computation(43)
	c.Assert(err, qt.ErrorIs, ErrUnknownComputation)
}

func TestRequestResolutionPreconditions(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	single := e.openAuction(c, common.HexToAddress("0xa1"), 1)
	_, err := e.d.RequestResolution(ctx, single, 1, encContext(1, 1))
	c.Assert(err, qt.ErrorIs, registry.ErrNotEnoughBids)
	a, err := e.registry.Auction(single)
	c.Assert(err, qt.IsNil)
	c.Assert(a.IsOpen, qt.IsTrue)

	first := e.openAuction(c, common.HexToAddress("0xa2"), 2)
	_, err = e.d.RequestResolution(ctx, first, 7, encContext(1, 1))
	c.Assert(err, qt.IsNil)

	second := e.openAuction(c, common.HexToAddress("0xa3"), 3)

	// offset collision leaves the second auction open
	_, err = e.d.RequestResolution(ctx, second, 7, encContext(2, 1))
	c.Assert(err, qt.ErrorIs, ErrDuplicateOffset)
	a, err = e.registry.Auction(second)
	c.Assert(err, qt.IsNil)
	c.Assert(a.IsOpen, qt.IsTrue)

	// the nonce is burnt for that key, not for others
	_, err = e.d.RequestResolution(ctx, second, 8, encContext(1, 1))
	c.Assert(err, qt.ErrorIs, ErrNonceReused)
	a, err = e.registry.Auction(second)
	c.Assert(err, qt.IsNil)
	c.Assert(a.IsOpen, qt.IsTrue)
	_, err = e.d.Computation(8)
	c.Assert(err, qt.ErrorIs, ErrUnknownComputation)

	_, err = e.d.RequestResolution(ctx, second, 8, encContext(2, 1))
	c.Assert(err, qt.IsNil)
	c.Assert(e.backend.reqs, qt.HasLen, 2)

	_, err = e.d.RequestResolution(ctx, types.DeriveAuctionID(common.Address{}), 9, encContext(3, 1))
	c.Assert(err, qt.ErrorIs, registry.ErrAuctionNotFound)
}

func TestRequestResolutionSubmissionFailure(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	e.backend.err = errors.New("queue full")

	id := e.openAuction(c, common.HexToAddress("0xa1"), 2)
	h, err := e.d.RequestResolution(context.Background(), id, 1, encContext(1, 1))
	c.Assert(err, qt.ErrorIs, ErrSubmissionFailed)
	c.Assert(h, qt.IsNotNil)
	c.Assert(h.Status, qt.Equals, types.ComputationAborted)

	stored, err := e.d.Computation(1)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, types.ComputationAborted)
	c.Assert(stored.AbortReason, qt.Contains, "queue full")

	// the auction stays closed, recovery is external
	a, err := e.registry.Auction(id)
	c.Assert(err, qt.IsNil)
	c.Assert(a.IsOpen, qt.IsFalse)
}

func TestRequestResolutionConcurrentOffsets(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)

	const n = 6
	ids := make([]types.AuctionID, n)
	for i := range n {
		ids[i] = e.openAuction(c, common.BytesToAddress([]byte{0xa0, byte(i)}), 2)
	}
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.d.RequestResolution(context.Background(), ids[i], 100, encContext(byte(i), 1))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		c.Assert(err, qt.ErrorIs, ErrDuplicateOffset)
	}
	c.Assert(ok, qt.Equals, 1)
	c.Assert(e.backend.reqs, qt.HasLen, 1)
}
