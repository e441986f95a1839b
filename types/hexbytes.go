package types

import (
	"encoding/hex"
	"fmt"

	"github.com/vocdoni/sealbid-node/util"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to the
// base64 default.
type HexBytes []byte

// Hex returns the hexadecimal string representation of the HexBytes.
func (b HexBytes) Hex() string {
	return hex.EncodeToString(b)
}

// String returns the hexadecimal string representation of the HexBytes,
// prefixed with "0x".
func (b HexBytes) String() string {
	return "0x" + b.Hex()
}

// Equal reports whether b and other hold the same bytes.
func (b HexBytes) Equal(other HexBytes) bool {
	return string(b) == string(other)
}

// MarshalJSON implements the json.Marshaler interface for HexBytes. It encodes
// the byte slice as a hexadecimal string prefixed with "0x".
func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	enc[0] = '"'
	enc[1] = '0'
	enc[2] = 'x'
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for HexBytes. It
// expects a JSON string containing a hexadecimal representation, optionally
// prefixed with "0x".
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	decoded, err := HexStringToHexBytes(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes converts a hex string, with or without the 0x prefix,
// to a HexBytes.
func HexStringToHexBytes(hexString string) (HexBytes, error) {
	b, err := hex.DecodeString(util.TrimHex(hexString))
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", hexString, err)
	}
	return b, nil
}

// unmarshalFixedJSON decodes a JSON hex string into a fixed-size array.
func unmarshalFixedJSON(data []byte, out []byte, name string) error {
	var hb HexBytes
	if err := hb.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if len(hb) != len(out) {
		return fmt.Errorf("invalid %s length: got %d bytes, want %d", name, len(hb), len(out))
	}
	copy(out, hb)
	return nil
}
