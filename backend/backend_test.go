package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/crypto/sealed"
	"github.com/vocdoni/sealbid-node/crypto/signatures/ethereum"
	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/types"
)

type fixture struct {
	cluster   *Cluster
	keys      *sealed.KeyPair
	requester *sealed.KeyPair
}

func newFixture(c *qt.C, cb Callback, workers, queue int) *fixture {
	signer, err := ethereum.NewSigner()
	c.Assert(err, qt.IsNil)
	keys, err := sealed.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	requester, err := sealed.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	cl, err := New(Config{Signer: signer, Keys: keys, Callback: cb, Workers: workers, QueueSize: queue})
	c.Assert(err, qt.IsNil)
	return &fixture{cluster: cl, keys: keys, requester: requester}
}

// request builds a resolution request over bids padded to slots.
func (f *fixture) request(c *qt.C, offset uint64, slots int, bids ...uint64) *types.ComputationRequest {
	cipher, err := f.requester.Cipher(f.keys.Public)
	c.Assert(err, qt.IsNil)
	nonce := types.NewNonce(1, offset)
	cts, err := cipher.EncryptAll(bids, nonce)
	c.Assert(err, qt.IsNil)
	padded := make([]types.Ciphertext, slots)
	copy(padded, cts)
	return &types.ComputationRequest{
		Offset:           offset,
		DefinitionOffset: tournament.DefinitionOffset(slots),
		Arguments:        dispatcher.BuildArguments(types.EncryptionContext{PublicKey: f.requester.Public, Nonce: nonce}, padded),
	}
}

func TestExecute(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, CallbackFunc(func(context.Context, *types.SignedOutput) error { return nil }), 0, 0)

	req := f.request(c, 9, 4, 10, 40, 25, 40)
	out := f.cluster.Execute(req)
	c.Assert(out.Failure, qt.Equals, "")
	c.Assert(out.Offset, qt.Equals, uint64(9))
	c.Assert(out.InputsHash, qt.DeepEquals, req.InputsHash())
	c.Assert(out.WinnerIndex(), qt.Equals, uint64(1))
	c.Assert(out.WinningBid(), qt.Equals, uint64(40))

	sig, err := ethereum.BytesToSignature(out.Signature)
	c.Assert(err, qt.IsNil)
	ok, _ := sig.Verify(out.SigningPayload(), f.cluster.Address())
	c.Assert(ok, qt.IsTrue)

	cipher, err := f.requester.Cipher(f.keys.Public)
	c.Assert(err, qt.IsNil)
	idx, bid, err := cipher.OpenResult(out.Encrypted, out.ResultNonce)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, uint64(1))
	c.Assert(bid, qt.Equals, uint64(40))

	// padding never wins
	out = f.cluster.Execute(f.request(c, 10, 4, 0, 3))
	c.Assert(out.WinnerIndex(), qt.Equals, uint64(1))
	c.Assert(out.WinningBid(), qt.Equals, uint64(3))
}

func TestExecuteFailures(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, CallbackFunc(func(context.Context, *types.SignedOutput) error { return nil }), 0, 0)

	req := f.request(c, 1, 4, 1, 2, 3)
	req.DefinitionOffset++
	out := f.cluster.Execute(req)
	c.Assert(out.Failure, qt.Matches, "unknown computation definition.*")
	c.Assert(out.Fields, qt.Equals, [2]types.OutputField{})
	c.Assert(out.Signature, qt.Not(qt.HasLen), 0)

	req = f.request(c, 2, 4, 1, 2, 3)
	req.Arguments = req.Arguments[:2]
	out = f.cluster.Execute(req)
	c.Assert(out.Failure, qt.Matches, "invalid arguments.*")
}

func TestExecuteUndecryptableBids(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, CallbackFunc(func(context.Context, *types.SignedOutput) error { return nil }), 0, 0)
	cipher, err := f.requester.Cipher(f.keys.Public)
	c.Assert(err, qt.IsNil)
	nonce := types.NewNonce(1, 5)
	encrypt := func(v, slot uint64) types.Ciphertext {
		ct, err := cipher.Encrypt(v, nonce, slot)
		c.Assert(err, qt.IsNil)
		return ct
	}
	var garbage types.Ciphertext
	for i := range garbage {
		garbage[i] = byte(i + 1)
	}
	enc := types.EncryptionContext{PublicKey: f.requester.Public, Nonce: nonce}

	// the 40 was sealed for slot 0 but landed in slot 1
	req := &types.ComputationRequest{
		Offset:           5,
		DefinitionOffset: tournament.DefinitionOffset(4),
		Arguments: dispatcher.BuildArguments(enc, []types.Ciphertext{
			encrypt(10, 0), encrypt(40, 0), encrypt(25, 2), garbage,
		}),
	}
	out := f.cluster.Execute(req)
	c.Assert(out.Failure, qt.Equals, "")
	c.Assert(out.WinnerIndex(), qt.Equals, uint64(2))
	c.Assert(out.WinningBid(), qt.Equals, uint64(25))

	// nothing decrypts: every slot counts as zero and the first one wins
	req.Offset = 6
	req.Arguments = dispatcher.BuildArguments(enc, []types.Ciphertext{garbage, encrypt(7, 0), {}, {}})
	out = f.cluster.Execute(req)
	c.Assert(out.Failure, qt.Equals, "")
	c.Assert(out.WinnerIndex(), qt.Equals, uint64(0))
	c.Assert(out.WinningBid(), qt.Equals, uint64(0))
}

func TestClusterLifecycle(t *testing.T) {
	c := qt.New(t)
	outputs := make(chan *types.SignedOutput, 4)
	f := newFixture(c, CallbackFunc(func(_ context.Context, out *types.SignedOutput) error {
		outputs <- out
		return nil
	}), 2, 4)

	err := f.cluster.Submit(context.Background(), f.request(c, 1, 2, 1, 2))
	c.Assert(errors.Is(err, ErrNotRunning), qt.IsTrue)

	f.cluster.Start(context.Background())
	for offset := uint64(1); offset <= 3; offset++ {
		c.Assert(f.cluster.Submit(context.Background(), f.request(c, offset, 4, offset, 7, 2)), qt.IsNil)
	}
	seen := map[uint64]bool{}
	for range 3 {
		select {
		case out := <-outputs:
			c.Assert(out.Failure, qt.Equals, "")
			c.Assert(out.WinningBid(), qt.Equals, uint64(7))
			seen[out.Offset] = true
		case <-time.After(10 * time.Second):
			c.Fatal("timed out waiting for outputs")
		}
	}
	c.Assert(seen, qt.HasLen, 3)
	c.Assert(f.cluster.Stop(), qt.IsNil)
	c.Assert(f.cluster.Stop(), qt.IsNil)
}

func TestClusterQueueFull(t *testing.T) {
	c := qt.New(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f := newFixture(c, CallbackFunc(func(ctx context.Context, _ *types.SignedOutput) error {
		entered <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), 1, 1)
	f.cluster.Start(context.Background())
	defer func() { c.Assert(f.cluster.Stop(), qt.IsNil) }()

	c.Assert(f.cluster.Submit(context.Background(), f.request(c, 1, 2, 1, 2)), qt.IsNil)
	<-entered
	// the single worker is busy, the queue takes one more
	c.Assert(f.cluster.Submit(context.Background(), f.request(c, 2, 2, 1, 2)), qt.IsNil)
	err := f.cluster.Submit(context.Background(), f.request(c, 3, 2, 1, 2))
	c.Assert(errors.Is(err, ErrQueueFull), qt.IsTrue)
	close(release)
}

func TestDeliverRetries(t *testing.T) {
	c := qt.New(t)
	var calls atomic.Int32
	f := newFixture(c, CallbackFunc(func(context.Context, *types.SignedOutput) error {
		if calls.Add(1) < 2 {
			return errors.New("temporary")
		}
		return nil
	}), 0, 0)
	f.cluster.deliver(context.Background(), &types.SignedOutput{Offset: 1})
	c.Assert(calls.Load(), qt.Equals, int32(2))

	calls.Store(0)
	f.cluster.callback = CallbackFunc(func(context.Context, *types.SignedOutput) error {
		calls.Add(1)
		return ErrCallbackRejected
	})
	f.cluster.deliver(context.Background(), &types.SignedOutput{Offset: 1})
	c.Assert(calls.Load(), qt.Equals, int32(1))
}

func TestHTTPCallback(t *testing.T) {
	c := qt.New(t)
	var status atomic.Int32
	status.Store(http.StatusOK)
	received := make(chan *types.SignedOutput, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := &types.SignedOutput{}
		if err := json.NewDecoder(r.Body).Decode(out); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		select {
		case received <- out:
		default:
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	cb := NewHTTPCallback(srv.URL)
	out := &types.SignedOutput{Offset: 5, InputsHash: types.HexBytes{1, 2}, Signature: types.HexBytes{3}}
	c.Assert(cb.Deliver(context.Background(), out), qt.IsNil)
	got := <-received
	c.Assert(got.Offset, qt.Equals, uint64(5))
	c.Assert(got.InputsHash, qt.DeepEquals, out.InputsHash)

	status.Store(http.StatusConflict)
	err := cb.Deliver(context.Background(), out)
	c.Assert(errors.Is(err, ErrCallbackRejected), qt.IsTrue)

	status.Store(http.StatusInternalServerError)
	err = cb.Deliver(context.Background(), out)
	c.Assert(err, qt.IsNotNil)
	c.Assert(errors.Is(err, ErrCallbackRejected), qt.IsFalse)
}
