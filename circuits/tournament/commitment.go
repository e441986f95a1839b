package tournament

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/vocdoni/sealbid-node/types"
)

// Blinding is the random field element that hides the bids behind their
// commitment.
type Blinding fr.Element

// RandomBlinding returns a uniformly random blinding.
func RandomBlinding() (Blinding, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return Blinding{}, fmt.Errorf("random blinding: %w", err)
	}
	return Blinding(e), nil
}

// BigInt returns the blinding as a circuit witness value.
func (b Blinding) BigInt() *big.Int {
	e := fr.Element(b)
	return e.BigInt(new(big.Int))
}

// Commitment returns MiMC(blinding, bids...) over the BN254 scalar field,
// the public commitment a resolution proof is bound to.
func Commitment(blinding Blinding, bids []uint64) types.HexBytes {
	h := mimc.NewMiMC()
	e := fr.Element(blinding)
	b := e.Bytes()
	h.Write(b[:])
	for _, bid := range bids {
		var v fr.Element
		v.SetUint64(bid)
		b := v.Bytes()
		h.Write(b[:])
	}
	return h.Sum(nil)
}
