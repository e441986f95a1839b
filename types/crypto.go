package types

import (
	"crypto/rand"

	"github.com/holiman/uint256"
	"github.com/vocdoni/sealbid-node/types/params"
)

// Ciphertext is an encrypted 64-bit value. Its format is defined by the
// crypto/sealed package; the rest of the node treats it as opaque. The
// all-zero value is the padding sentinel of unused bid slots.
type Ciphertext [params.CiphertextSize]byte

// IsSentinel reports whether c is the all-zero padding ciphertext.
func (c Ciphertext) IsSentinel() bool { return c == Ciphertext{} }

// Bytes returns a slice view of the underlying array.
func (c Ciphertext) Bytes() []byte { return c[:] }

// String returns the 0x-prefixed hex representation.
func (c Ciphertext) String() string { return HexBytes(c[:]).String() }

// MarshalJSON implements the json.Marshaler interface.
func (c Ciphertext) MarshalJSON() ([]byte, error) { return HexBytes(c[:]).MarshalJSON() }

// UnmarshalJSON implements the json.Unmarshaler interface.
func (c *Ciphertext) UnmarshalJSON(data []byte) error {
	return unmarshalFixedJSON(data, c[:], "ciphertext")
}

// PublicKey is an x25519 public key.
type PublicKey [32]byte

// Bytes returns a slice view of the underlying array.
func (k PublicKey) Bytes() []byte { return k[:] }

// String returns the 0x-prefixed hex representation.
func (k PublicKey) String() string { return HexBytes(k[:]).String() }

// MarshalJSON implements the json.Marshaler interface.
func (k PublicKey) MarshalJSON() ([]byte, error) { return HexBytes(k[:]).MarshalJSON() }

// UnmarshalJSON implements the json.Unmarshaler interface.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	return unmarshalFixedJSON(data, k[:], "public key")
}

// Nonce is a 128-bit big-endian unsigned integer used once per encryption
// context.
type Nonce [params.NonceSize]byte

// NewNonce builds a Nonce from its high and low 64-bit halves.
func NewNonce(hi, lo uint64) Nonce {
	v := new(uint256.Int).Lsh(uint256.NewInt(hi), 64)
	v.Or(v, uint256.NewInt(lo))
	return nonceFromUint256(v)
}

// RandomNonce returns a uniformly random nonce.
func RandomNonce() Nonce {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		panic(err)
	}
	return n
}

// Uint256 returns the nonce value.
func (n Nonce) Uint256() *uint256.Int { return new(uint256.Int).SetBytes(n[:]) }

// Next returns n+1 modulo 2^128. The result of a computation is encrypted
// under the nonce following the request nonce.
func (n Nonce) Next() Nonce {
	v := n.Uint256()
	v.AddUint64(v, 1)
	return nonceFromUint256(v)
}

// LittleEndian returns the nonce as a 16-byte little-endian u128.
func (n Nonce) LittleEndian() []byte {
	out := make([]byte, params.NonceSize)
	for i := range n {
		out[i] = n[params.NonceSize-1-i]
	}
	return out
}

// Bytes returns a slice view of the underlying array.
func (n Nonce) Bytes() []byte { return n[:] }

// String returns the 0x-prefixed hex representation.
func (n Nonce) String() string { return HexBytes(n[:]).String() }

// MarshalJSON implements the json.Marshaler interface.
func (n Nonce) MarshalJSON() ([]byte, error) { return HexBytes(n[:]).MarshalJSON() }

// UnmarshalJSON implements the json.Unmarshaler interface.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	return unmarshalFixedJSON(data, n[:], "nonce")
}

func nonceFromUint256(v *uint256.Int) Nonce {
	b := v.Bytes32()
	var n Nonce
	copy(n[:], b[32-params.NonceSize:])
	return n
}

// EncryptionContext is the requester key and nonce a resolution is bound
// to. Bids are encrypted under the shared key of the requester and the
// cluster, and the result is encrypted back to the requester.
type EncryptionContext struct {
	PublicKey PublicKey `json:"publicKey" cbor:"0,keyasint"`
	Nonce     Nonce     `json:"nonce" cbor:"1,keyasint"`
}
