package types

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/sealbid-node/types/params"
	"github.com/vocdoni/sealbid-node/util"
)

// AuctionIDLen is the length in bytes of an AuctionID.
const AuctionIDLen = 32

// AuctionID identifies an auction instance. It is derived from the authority
// that creates it, so an authority owns at most one auction.
type AuctionID [AuctionIDLen]byte

// DeriveAuctionID returns keccak256(AuctionIDSeed || authority).
func DeriveAuctionID(authority common.Address) AuctionID {
	var id AuctionID
	copy(id[:], ethcrypto.Keccak256([]byte(params.AuctionIDSeed), authority.Bytes()))
	return id
}

// HexStringToAuctionID parses an AuctionID from a hex string with an
// optional 0x prefix.
func HexStringToAuctionID(s string) (AuctionID, error) {
	s = util.TrimHex(s)
	if len(s) != AuctionIDLen*2 {
		return AuctionID{}, fmt.Errorf("invalid auction ID hex length %d, want %d", len(s), AuctionIDLen*2)
	}
	var id AuctionID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return AuctionID{}, fmt.Errorf("could not decode hex string: %w", err)
	}
	return id, nil
}

// Bytes returns a slice view of the underlying array.
func (id AuctionID) Bytes() []byte { return id[:] }

// String returns the 0x-prefixed hex representation.
func (id AuctionID) String() string { return HexBytes(id[:]).String() }

// IsZero reports whether the id is unset.
func (id AuctionID) IsZero() bool { return id == AuctionID{} }

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (id AuctionID) MarshalBinary() ([]byte, error) { return id[:], nil }

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (id *AuctionID) UnmarshalBinary(data []byte) error {
	if len(data) != AuctionIDLen {
		return fmt.Errorf("invalid AuctionID length: %d", len(data))
	}
	copy(id[:], data)
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (id AuctionID) MarshalJSON() ([]byte, error) { return HexBytes(id[:]).MarshalJSON() }

// UnmarshalJSON implements the json.Unmarshaler interface.
func (id *AuctionID) UnmarshalJSON(data []byte) error {
	return unmarshalFixedJSON(data, id[:], "auction ID")
}
