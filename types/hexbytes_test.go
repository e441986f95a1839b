package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytes(t *testing.T) {
	c := qt.New(t)

	c.Run("String", func(c *qt.C) {
		testCases := []struct {
			name string
			in   HexBytes
			want string
		}{
			{name: "nil slice", in: nil, want: "0x"},
			{name: "empty", in: HexBytes{}, want: "0x"},
			{name: "non-empty", in: HexBytes{0x00, 0xAB, 0xCD}, want: "0x00abcd"},
		}
		for _, tc := range testCases {
			c.Run(tc.name, func(c *qt.C) {
				c.Assert(tc.in.String(), qt.Equals, tc.want)
			})
		}
	})

	c.Run("JSON", func(c *qt.C) {
		data, err := json.Marshal(HexBytes{0xde, 0xad})
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, `"0xdead"`)

		var hb HexBytes
		c.Assert(json.Unmarshal([]byte(`"beef"`), &hb), qt.IsNil)
		c.Assert(hb, qt.DeepEquals, HexBytes{0xbe, 0xef})

		c.Assert(json.Unmarshal([]byte(`"0xzz"`), &hb), qt.ErrorMatches, `invalid hex string.*`)
		c.Assert(hb.UnmarshalJSON([]byte(`1234`)), qt.ErrorMatches, `invalid JSON string.*`)
	})
}

func TestFixedSizeJSON(t *testing.T) {
	c := qt.New(t)

	var ct Ciphertext
	ct[0], ct[31] = 0x01, 0xff
	data, err := json.Marshal(ct)
	c.Assert(err, qt.IsNil)

	var decoded Ciphertext
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded, qt.Equals, ct)

	var nonce Nonce
	c.Assert(json.Unmarshal([]byte(`"0x0102"`), &nonce), qt.ErrorMatches, `invalid nonce length: got 2 bytes, want 16`)
}
