package settlement

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/crypto/signatures/ethereum"
)

// SignatureVerifier authenticates the signature of a computation output
// against the cluster identity recorded in its handle.
type SignatureVerifier interface {
	Verify(payload, signature []byte, signer common.Address) error
}

// EthereumVerifier checks secp256k1 signatures over Ethereum-prefixed
// messages.
type EthereumVerifier struct{}

// Verify implements SignatureVerifier.
func (EthereumVerifier) Verify(payload, signature []byte, signer common.Address) error {
	sig, err := ethereum.BytesToSignature(signature)
	if err != nil {
		return err
	}
	if ok, _ := sig.Verify(payload, signer); !ok {
		return fmt.Errorf("signature does not match %s", signer.Hex())
	}
	return nil
}
