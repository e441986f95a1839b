package storage

import (
	"encoding/binary"

	"github.com/vocdoni/sealbid-node/types"
)

func auctionKey(id types.AuctionID) []byte {
	return id.Bytes()
}

// computationKey encodes the offset big endian so handles iterate in offset
// order.
func computationKey(offset uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, offset)
}

func offsetFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

func nonceKey(pubKey types.PublicKey, nonce types.Nonce) []byte {
	key := make([]byte, 0, len(pubKey)+len(nonce))
	key = append(key, pubKey[:]...)
	return append(key, nonce[:]...)
}

func settlementKey(id types.AuctionID) []byte {
	return id.Bytes()
}
