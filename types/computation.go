package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/sealbid-node/types/params"
)

// ComputationStatus is the state of a ComputationHandle. Verified and
// Aborted are terminal.
type ComputationStatus uint8

const (
	ComputationPending ComputationStatus = iota
	ComputationVerified
	ComputationAborted
)

func (s ComputationStatus) String() string {
	switch s {
	case ComputationPending:
		return "pending"
	case ComputationVerified:
		return "verified"
	case ComputationAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s ComputationStatus) Terminal() bool {
	return s == ComputationVerified || s == ComputationAborted
}

// MarshalText implements encoding.TextMarshaler so the status reads as a
// string in JSON.
func (s ComputationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ComputationStatus) UnmarshalText(text []byte) error {
	for _, st := range []ComputationStatus{ComputationPending, ComputationVerified, ComputationAborted} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown computation status %q", text)
}

// ArgumentKind tags the entries of a computation argument list.
type ArgumentKind uint8

const (
	ArgX25519PublicKey ArgumentKind = iota + 1
	ArgPlaintextU128
	ArgEncryptedU64
)

// Argument is one entry of the ordered, opaque argument list of a
// computation request.
type Argument struct {
	Kind ArgumentKind `json:"kind" cbor:"0,keyasint"`
	Data HexBytes     `json:"data" cbor:"1,keyasint"`
}

// ComputationRequest is what the dispatcher submits to a computation
// backend.
type ComputationRequest struct {
	Offset           uint64     `json:"offset"`
	DefinitionOffset uint32     `json:"definitionOffset"`
	Arguments        []Argument `json:"arguments"`
}

// InputsHash returns keccak256 over the concatenated argument data. It binds
// an output to the exact inputs (key, nonce and bid snapshot) it was
// computed on.
func (r *ComputationRequest) InputsHash() HexBytes {
	return InputsHash(r.Arguments)
}

// InputsHash returns keccak256 over the concatenated data of args.
func InputsHash(args []Argument) HexBytes {
	data := make([][]byte, len(args))
	for i, a := range args {
		data[i] = a.Data
	}
	return ethcrypto.Keccak256(data...)
}

// ComputationHandle correlates one resolution request with its callback.
// It is bound at creation to the snapshot of bids it was dispatched with.
type ComputationHandle struct {
	Offset           uint64            `json:"offset" cbor:"0,keyasint"`
	AuctionID        AuctionID         `json:"auctionId" cbor:"1,keyasint"`
	DefinitionOffset uint32            `json:"definitionOffset" cbor:"2,keyasint"`
	Cluster          common.Address    `json:"cluster" cbor:"3,keyasint"`
	Encryption       EncryptionContext `json:"encryption" cbor:"4,keyasint"`
	Snapshot         []Ciphertext      `json:"snapshot" cbor:"5,keyasint"`
	InputsHash       HexBytes          `json:"inputsHash" cbor:"6,keyasint"`
	Status           ComputationStatus `json:"status" cbor:"7,keyasint"`
	AbortReason      string            `json:"abortReason,omitempty" cbor:"8,keyasint,omitempty"`
	CreatedAt        int64             `json:"createdAt" cbor:"9,keyasint"`
	FinalizedAt      int64             `json:"finalizedAt,omitempty" cbor:"10,keyasint,omitempty"`
}

// OutputField is a plaintext result field of a computation output. Integer
// values are stored little-endian in the first 8 bytes.
type OutputField [32]byte

// Uint64 decodes the first 8 bytes as a little-endian integer.
func (f OutputField) Uint64() uint64 { return binary.LittleEndian.Uint64(f[:8]) }

// OutputFieldFromUint64 encodes v into an OutputField.
func OutputFieldFromUint64(v uint64) OutputField {
	var f OutputField
	binary.LittleEndian.PutUint64(f[:8], v)
	return f
}

// MarshalJSON implements the json.Marshaler interface.
func (f OutputField) MarshalJSON() ([]byte, error) { return HexBytes(f[:]).MarshalJSON() }

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *OutputField) UnmarshalJSON(data []byte) error {
	return unmarshalFixedJSON(data, f[:], "output field")
}

// SignedOutput is the result of a computation as reported by the cluster.
// Fields carry the plaintext winner index and winning bid; Encrypted carries
// the same values encrypted to the requester under ResultNonce. A non-empty
// Failure reports that the cluster could not execute the computation.
type SignedOutput struct {
	Offset           uint64                           `json:"offset"`
	DefinitionOffset uint32                           `json:"definitionOffset"`
	InputsHash       HexBytes                         `json:"inputsHash"`
	Fields           [params.ResultFields]OutputField `json:"fields"`
	Encrypted        [params.ResultFields]Ciphertext  `json:"encrypted"`
	ResultNonce      Nonce                            `json:"resultNonce"`
	Failure          string                           `json:"failure,omitempty"`
	BidsCommitment   HexBytes                         `json:"bidsCommitment,omitempty"`
	Proof            HexBytes                         `json:"proof,omitempty"`
	Signature        HexBytes                         `json:"signature"`
}

// SigningPayload returns the canonical bytes the cluster signs.
func (o *SignedOutput) SigningPayload() []byte {
	var buf bytes.Buffer
	buf.WriteString(params.OutputSigningDomain)
	buf.Write(binary.BigEndian.AppendUint64(nil, o.Offset))
	buf.Write(binary.LittleEndian.AppendUint32(nil, o.DefinitionOffset))
	buf.Write(o.InputsHash)
	for _, f := range o.Fields {
		buf.Write(f[:])
	}
	for _, e := range o.Encrypted {
		buf.Write(e[:])
	}
	buf.Write(o.ResultNonce[:])
	buf.Write(ethcrypto.Keccak256([]byte(o.Failure)))
	buf.Write(ethcrypto.Keccak256(o.BidsCommitment))
	buf.Write(ethcrypto.Keccak256(o.Proof))
	return buf.Bytes()
}

// WinnerIndex decodes the winner index field.
func (o *SignedOutput) WinnerIndex() uint64 { return o.Fields[0].Uint64() }

// WinningBid decodes the winning bid field.
func (o *SignedOutput) WinningBid() uint64 { return o.Fields[1].Uint64() }

// SettlementRecord is the persisted outcome of a verified resolution.
// Winner is the bidder identity of the winning slot, kept for payout.
type SettlementRecord struct {
	AuctionID       AuctionID                       `json:"auctionId" cbor:"0,keyasint"`
	Offset          uint64                          `json:"offset" cbor:"1,keyasint"`
	WinnerIndex     uint64                          `json:"winnerIndex" cbor:"2,keyasint"`
	WinningBid      uint64                          `json:"winningBid" cbor:"3,keyasint"`
	Winner          common.Address                  `json:"winner" cbor:"4,keyasint"`
	EncryptedResult [params.ResultFields]Ciphertext `json:"encryptedResult" cbor:"5,keyasint"`
	ResultNonce     Nonce                           `json:"resultNonce" cbor:"6,keyasint"`
	SettledAt       int64                           `json:"settledAt" cbor:"7,keyasint"`
}
