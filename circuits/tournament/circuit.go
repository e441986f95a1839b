package tournament

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/vocdoni/sealbid-node/circuits"
	"github.com/vocdoni/sealbid-node/types/params"
)

// BidBits is the bit width of a bid. Every bid is range checked to it, which
// also keeps the comparison gadget sound.
const BidBits = 64

// two64 offsets a difference of two range checked bids into [1, 2^65).
var two64 = new(big.Int).Lsh(big.NewInt(1), BidBits)

// ResolveCircuit proves that WinnerIndex and WinningBid are the tournament
// result over the private Bids, and that Commitment is MiMC(Blinding,
// Bids...). Unused slots carry zero.
type ResolveCircuit struct {
	Bids        []frontend.Variable
	Blinding    frontend.Variable
	Commitment  frontend.Variable `gnark:",public"`
	WinnerIndex frontend.Variable `gnark:",public"`
	WinningBid  frontend.Variable `gnark:",public"`
}

// Define implements frontend.Circuit.
func (c *ResolveCircuit) Define(api frontend.API) error {
	if len(c.Bids) < params.MinBidders || len(c.Bids) > params.MaxBiddersLimit {
		return fmt.Errorf("invalid number of bid slots: %d", len(c.Bids))
	}
	for _, bid := range c.Bids {
		api.ToBinary(bid, BidBits)
	}
	index, value := Tournament[frontend.Variable](&Gadget{api: api}, c.Bids)
	api.AssertIsEqual(index, c.WinnerIndex)
	api.AssertIsEqual(value, c.WinningBid)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Blinding)
	h.Write(c.Bids...)
	api.AssertIsEqual(h.Sum(), c.Commitment)
	return nil
}

// Gadget is the in-circuit evaluator. Its inputs must be range checked to
// BidBits.
type Gadget struct {
	api frontend.API
}

// NewGadget returns an evaluator bound to api.
func NewGadget(api frontend.API) *Gadget {
	return &Gadget{api: api}
}

// GreaterOrEqual decomposes a - b + 2^64 and returns its top bit.
func (g *Gadget) GreaterOrEqual(a, b frontend.Variable) frontend.Variable {
	diff := g.api.Add(g.api.Sub(a, b), two64)
	return g.api.ToBinary(diff, BidBits+1)[BidBits]
}

// Select wraps api.Select.
func (g *Gadget) Select(sel, a, b frontend.Variable) frontend.Variable {
	return g.api.Select(sel, a, b)
}

// Constant returns v as a circuit constant.
func (g *Gadget) Constant(v uint64) frontend.Variable {
	return v
}

// Placeholder returns the circuit shape for n bid slots.
func Placeholder(n int) *ResolveCircuit {
	return &ResolveCircuit{Bids: make([]frontend.Variable, n)}
}

// Assignment returns the full assignment for the given plaintext bids,
// computing the public result and commitment natively.
func Assignment(bids []uint64, blinding Blinding) *ResolveCircuit {
	index, value := Max(bids)
	return &ResolveCircuit{
		Bids:        circuits.Uint64sToVariables(bids),
		Blinding:    blinding.BigInt(),
		Commitment:  new(big.Int).SetBytes(Commitment(blinding, bids)),
		WinnerIndex: index,
		WinningBid:  value,
	}
}

// PublicAssignment returns an assignment holding only the public inputs of
// an n slot circuit, suitable for proof verification.
func PublicAssignment(n int, commitment []byte, index, value uint64) *ResolveCircuit {
	c := Placeholder(n)
	for i := range c.Bids {
		c.Bids[i] = 0
	}
	c.Blinding = 0
	c.Commitment = new(big.Int).SetBytes(commitment)
	c.WinnerIndex = index
	c.WinningBid = value
	return c
}

// DefinitionOffset returns the registered identifier of the n slot
// resolution: the first four bytes of sha256("resolve_auction_<n>") read as
// little endian.
func DefinitionOffset(n int) uint32 {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s_%d", params.ResolveDefinitionName, n))
	return binary.LittleEndian.Uint32(sum[:4])
}
