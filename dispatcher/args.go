package dispatcher

import (
	"fmt"

	"github.com/vocdoni/sealbid-node/types"
	"github.com/vocdoni/sealbid-node/types/params"
)

// BuildArguments returns the ordered argument list of a resolution request:
// the requester x25519 key, the nonce as a little endian u128 and one
// encrypted u64 per snapshot slot in index order.
func BuildArguments(enc types.EncryptionContext, bids []types.Ciphertext) []types.Argument {
	args := make([]types.Argument, 0, len(bids)+2)
	args = append(args,
		types.Argument{Kind: types.ArgX25519PublicKey, Data: append(types.HexBytes(nil), enc.PublicKey[:]...)},
		types.Argument{Kind: types.ArgPlaintextU128, Data: enc.Nonce.LittleEndian()},
	)
	for _, ct := range bids {
		args = append(args, types.Argument{Kind: types.ArgEncryptedU64, Data: append(types.HexBytes(nil), ct[:]...)})
	}
	return args
}

// ParseArguments is the inverse of BuildArguments.
func ParseArguments(args []types.Argument) (types.EncryptionContext, []types.Ciphertext, error) {
	var enc types.EncryptionContext
	if len(args) < 2+params.MinBidders {
		return enc, nil, fmt.Errorf("too few arguments: %d", len(args))
	}
	if args[0].Kind != types.ArgX25519PublicKey || len(args[0].Data) != len(enc.PublicKey) {
		return enc, nil, fmt.Errorf("argument 0: want x25519 public key")
	}
	copy(enc.PublicKey[:], args[0].Data)
	if args[1].Kind != types.ArgPlaintextU128 || len(args[1].Data) != params.NonceSize {
		return enc, nil, fmt.Errorf("argument 1: want u128 nonce")
	}
	for i, b := range args[1].Data {
		enc.Nonce[params.NonceSize-1-i] = b
	}
	bids := make([]types.Ciphertext, len(args)-2)
	for i, arg := range args[2:] {
		if arg.Kind != types.ArgEncryptedU64 || len(arg.Data) != params.CiphertextSize {
			return enc, nil, fmt.Errorf("argument %d: want encrypted u64", i+2)
		}
		copy(bids[i][:], arg.Data)
	}
	return enc, bids, nil
}
