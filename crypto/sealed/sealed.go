// Package sealed implements the shared-key encryption of 64-bit values used
// for bids and resolution results.
//
// A requester and the computation cluster agree on a key with x25519 and
// HKDF-SHA256. A value v at slot i under nonce n is encrypted as
//
//	(LE64(v) || 0^24) XOR XChaCha20(key, n || LE64(i))
//
// giving a fixed 32-byte ciphertext. The trailing zero bytes authenticate
// the slot binding: a ciphertext decrypted at the wrong slot, under the
// wrong key or nonce, fails with ErrMalformedCiphertext with overwhelming
// probability. The all-zero ciphertext is the padding sentinel and always
// decrypts to 0.
package sealed

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vocdoni/sealbid-node/types"
	"github.com/vocdoni/sealbid-node/types/params"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// ErrMalformedCiphertext is returned when a ciphertext does not decrypt to
// a well-formed block.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// KeyPair is an x25519 key pair.
type KeyPair struct {
	private [curve25519.ScalarSize]byte
	Public  types.PublicKey
}

// GenerateKeyPair returns a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("read random key: %w", err)
	}
	return KeyPairFromPrivate(priv)
}

// KeyPairFromPrivate builds a key pair from a 32-byte private scalar.
func KeyPairFromPrivate(priv []byte) (*KeyPair, error) {
	if len(priv) != curve25519.ScalarSize {
		return nil, fmt.Errorf("invalid x25519 private key length %d", len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive x25519 public key: %w", err)
	}
	kp := &KeyPair{}
	copy(kp.private[:], priv)
	copy(kp.Public[:], pub)
	return kp, nil
}

// PrivateKey returns a copy of the private scalar.
func (k *KeyPair) PrivateKey() types.HexBytes {
	return types.HexBytes(append([]byte(nil), k.private[:]...))
}

// Cipher derives the shared cipher between this key pair and peer.
func (k *KeyPair) Cipher(peer types.PublicKey) (*Cipher, error) {
	shared, err := curve25519.X25519(k.private[:], peer[:])
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	c := &Cipher{}
	kdf := hkdf.New(sha256.New, shared, nil, []byte(params.SharedKeyInfo))
	if _, err := io.ReadFull(kdf, c.key[:]); err != nil {
		return nil, fmt.Errorf("derive shared key: %w", err)
	}
	return c, nil
}

// Cipher encrypts and decrypts 64-bit values under a shared key.
type Cipher struct {
	key [chacha20.KeySize]byte
}

func (c *Cipher) xor(block *[params.CiphertextSize]byte, nonce types.Nonce, slot uint64) error {
	var xnonce [chacha20.NonceSizeX]byte
	copy(xnonce[:params.NonceSize], nonce[:])
	binary.LittleEndian.PutUint64(xnonce[params.NonceSize:], slot)
	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], xnonce[:])
	if err != nil {
		return err
	}
	stream.XORKeyStream(block[:], block[:])
	return nil
}

// Encrypt encrypts v for the given nonce and slot.
func (c *Cipher) Encrypt(v uint64, nonce types.Nonce, slot uint64) (types.Ciphertext, error) {
	var block [params.CiphertextSize]byte
	binary.LittleEndian.PutUint64(block[:8], v)
	if err := c.xor(&block, nonce, slot); err != nil {
		return types.Ciphertext{}, err
	}
	return types.Ciphertext(block), nil
}

// Decrypt decrypts ct for the given nonce and slot. The sentinel decrypts
// to 0.
func (c *Cipher) Decrypt(ct types.Ciphertext, nonce types.Nonce, slot uint64) (uint64, error) {
	if ct.IsSentinel() {
		return 0, nil
	}
	block := [params.CiphertextSize]byte(ct)
	if err := c.xor(&block, nonce, slot); err != nil {
		return 0, err
	}
	for _, b := range block[8:] {
		if b != 0 {
			return 0, fmt.Errorf("%w at slot %d", ErrMalformedCiphertext, slot)
		}
	}
	return binary.LittleEndian.Uint64(block[:8]), nil
}

// EncryptAll encrypts values at slots 0..len(values)-1.
func (c *Cipher) EncryptAll(values []uint64, nonce types.Nonce) ([]types.Ciphertext, error) {
	out := make([]types.Ciphertext, len(values))
	for i, v := range values {
		ct, err := c.Encrypt(v, nonce, uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = ct
	}
	return out, nil
}

// DecryptAll decrypts cts at slots 0..len(cts)-1.
func (c *Cipher) DecryptAll(cts []types.Ciphertext, nonce types.Nonce) ([]uint64, error) {
	out := make([]uint64, len(cts))
	for i, ct := range cts {
		v, err := c.Decrypt(ct, nonce, uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// OpenBids decrypts a bid snapshot. Slots that do not decrypt under their
// index are returned as 0, like padding, and listed in rejected, so one
// malformed bid never prevents the others from being resolved.
func (c *Cipher) OpenBids(cts []types.Ciphertext, nonce types.Nonce) (values []uint64, rejected []int, err error) {
	values = make([]uint64, len(cts))
	for i, ct := range cts {
		v, err := c.Decrypt(ct, nonce, uint64(i))
		switch {
		case errors.Is(err, ErrMalformedCiphertext):
			rejected = append(rejected, i)
		case err != nil:
			return nil, nil, err
		default:
			values[i] = v
		}
	}
	return values, rejected, nil
}

// SealResult encrypts a resolution result (winner index at slot 0, winning
// bid at slot 1) under nonce.Next().
func (c *Cipher) SealResult(winnerIndex, winningBid uint64, nonce types.Nonce) ([params.ResultFields]types.Ciphertext, types.Nonce, error) {
	var out [params.ResultFields]types.Ciphertext
	resultNonce := nonce.Next()
	for i, v := range []uint64{winnerIndex, winningBid} {
		ct, err := c.Encrypt(v, resultNonce, uint64(i))
		if err != nil {
			return out, types.Nonce{}, err
		}
		out[i] = ct
	}
	return out, resultNonce, nil
}

// OpenResult decrypts a result sealed with SealResult.
func (c *Cipher) OpenResult(encrypted [params.ResultFields]types.Ciphertext, resultNonce types.Nonce) (winnerIndex, winningBid uint64, err error) {
	if winnerIndex, err = c.Decrypt(encrypted[0], resultNonce, 0); err != nil {
		return 0, 0, err
	}
	if winningBid, err = c.Decrypt(encrypted[1], resultNonce, 1); err != nil {
		return 0, 0, err
	}
	return winnerIndex, winningBid, nil
}
