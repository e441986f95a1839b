// Package ethereum provides secp256k1 signatures over Ethereum-prefixed
// messages. The computation cluster signs its outputs with it and the
// settler recovers the signer address to authenticate them.
package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/sealbid-node/types"
)

const (
	// SignatureLength is the size of an ECDSA signature in bytes
	SignatureLength = ethcrypto.SignatureLength
	// SigningPrefix is the prefix added when hashing Ethereum messages
	SigningPrefix = "\u0019Ethereum Signed Message:\n"
	// HashLength is the size of a keccak256 hash
	HashLength = 32
)

// ECDSASignature represents an Ethereum ECDSA signature with R and S
// components and the recovery id (0-3).
type ECDSASignature struct {
	R        *big.Int `json:"r"`
	S        *big.Int `json:"s"`
	recovery byte
}

// BytesToSignature decodes a 65-byte R || S || V signature. V may use the
// 0-3 or the 27-30 convention.
func BytesToSignature(signature []byte) (*ECDSASignature, error) {
	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length %d, want %d", len(signature), SignatureLength)
	}
	sig := new(ECDSASignature).SetBytes(signature)
	if sig == nil {
		return nil, fmt.Errorf("wrong signature bytes")
	}
	return sig, nil
}

// HexToSignature decodes a hex encoded signature.
func HexToSignature(hexSignature string) (*ECDSASignature, error) {
	bSignature, err := types.HexStringToHexBytes(hexSignature)
	if err != nil {
		return nil, err
	}
	return BytesToSignature(bSignature)
}

// Valid reports whether both R and S are set.
func (sig *ECDSASignature) Valid() bool {
	return sig.R != nil && sig.S != nil
}

// Bytes returns the 65-byte R || S || V encoding with V in 0-3, the form
// expected by ethcrypto.SigToPub.
func (sig *ECDSASignature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	out[64] = sig.recovery
	return out
}

// HexBytes returns Bytes as HexBytes.
func (sig *ECDSASignature) HexBytes() types.HexBytes {
	return sig.Bytes()
}

// SetBytes sets the signature from a 65-byte slice. It returns nil if the
// recovery byte is out of range.
func (sig *ECDSASignature) SetBytes(signature []byte) *ECDSASignature {
	if len(signature) != SignatureLength {
		return nil
	}
	v := signature[64]
	if v >= 27 {
		v -= 27
	}
	if v > 3 {
		return nil
	}
	sig.R = new(big.Int).SetBytes(signature[:32])
	sig.S = new(big.Int).SetBytes(signature[32:64])
	sig.recovery = v
	return sig
}

// Verify checks that sig is a signature of signedInput produced by
// expectedAddress, by recovering the public key and comparing its derived
// address. It returns the recovered (uncompressed) public key.
func (sig *ECDSASignature) Verify(signedInput []byte, expectedAddress common.Address) (bool, []byte) {
	if !sig.Valid() {
		return false, nil
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(signedInput), sig.Bytes())
	if err != nil {
		return false, nil
	}
	return ethcrypto.PubkeyToAddress(*pubKey) == expectedAddress, ethcrypto.FromECDSAPub(pubKey)
}

// String returns a string representation of the ECDSASignature.
func (sig *ECDSASignature) String() string {
	return fmt.Sprintf("R: %s, S: %s, Recovery: %d", sig.R.String(), sig.S.String(), sig.recovery)
}

// AddrFromSignature recovers the Ethereum address that created the signature of a message.
func AddrFromSignature(message []byte, signature *ECDSASignature) (common.Address, error) {
	if signature == nil || !signature.Valid() {
		return common.Address{}, fmt.Errorf("signature is nil")
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(message), signature.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("sigToPub %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
