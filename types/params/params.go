// Package params holds the protocol constants shared by the node packages.
// Values that vary per deployment or per auction are passed explicitly as
// configuration; these are only defaults and hard limits.
package params

import "github.com/consensys/gnark-crypto/ecc"

const (
	// DefaultMaxBidders is the number of bid slots of an auction created
	// without an explicit size.
	DefaultMaxBidders = 4
	// MinBidders is the minimum number of placed bids needed to resolve.
	MinBidders = 2
	// MaxBiddersLimit bounds the per-auction slot count.
	MaxBiddersLimit = 64

	// CiphertextSize is the size of an encrypted 64-bit value.
	CiphertextSize = 32
	// NonceSize is the size of the 128-bit encryption nonce.
	NonceSize = 16
	// ResultFields is the number of fields in a resolution output
	// (winner index and winning bid).
	ResultFields = 2

	// ResolveDefinitionName is the name the resolution computation
	// definition is registered under, suffixed with the slot count.
	ResolveDefinitionName = "resolve_auction"
	// AuctionIDSeed is hashed with the authority to derive an auction id.
	AuctionIDSeed = "sealbid/auction"
	// OutputSigningDomain prefixes the signed payload of computation outputs.
	OutputSigningDomain = "sealbid/output/v1"
	// SharedKeyInfo is the HKDF info string of the shared encryption key.
	SharedKeyInfo = "sealbid/enc-shared/v1"
)

// ResolveCurve is the curve whose scalar field the resolution circuit is
// compiled on.
var ResolveCurve = ecc.BN254
