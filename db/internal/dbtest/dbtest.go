// Package dbtest holds the conformance tests shared by every db driver.
package dbtest

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/db"
)

// TestWriteTx checks Get, Set, Delete and Commit visibility.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible outside the tx before commit
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(wTx.Commit(), qt.IsNil)

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix filtering, key order and prefix stripping.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for i := range 20 {
		c.Assert(wTx.Set(fmt.Appendf(nil, "p/%02d", i), fmt.Appendf(nil, "v%d", i)), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("q/00"), []byte("other")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	var keys []string
	err := database.Iterate([]byte("p/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	c.Assert(err, qt.IsNil)
	c.Assert(keys, qt.HasLen, 20)
	c.Assert(keys[0], qt.Equals, "00")
	c.Assert(keys[19], qt.Equals, "19")

	// early stop
	count := 0
	err = database.Iterate([]byte("p/"), func(k, v []byte) bool {
		count++
		return count < 5
	})
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 5)

	// pending writes are visible when iterating a tx
	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("p/20"), []byte("v20")), qt.IsNil)
	c.Assert(wTx.Delete([]byte("p/00")), qt.IsNil)
	keys = keys[:0]
	c.Assert(wTx.Iterate([]byte("p/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 20)
	c.Assert(keys[0], qt.Equals, "01")
	c.Assert(keys[19], qt.Equals, "20")
}

// TestWriteTxApply checks that Apply merges the writes of another tx.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("k1"), []byte("v1")), qt.IsNil)

	other := database.WriteTx()
	defer other.Discard()
	c.Assert(other.Set([]byte("k2"), []byte("v2")), qt.IsNil)

	c.Assert(wTx.Apply(other), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := database.Get([]byte("k1"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v1"))
	v, err = database.Get([]byte("k2"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v2"))
}

// TestWriteTxApplyPrefixed checks Apply when the source tx is prefixed.
func TestWriteTxApplyPrefixed(t *testing.T, database, prefixed db.Database) {
	c := qt.New(t)

	prefix := []byte("one")

	wTx := database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("plain"), []byte("v1")), qt.IsNil)

	pTx := prefixed.WriteTx()
	defer pTx.Discard()
	c.Assert(pTx.Set([]byte("key"), []byte("v2")), qt.IsNil)

	c.Assert(wTx.Apply(pTx), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := database.Get(append(prefix, []byte("key")...))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v2"))

	v, err = prefixed.Get([]byte("key"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v2"))
}

// TestConcurrentWriteTx checks that conflicting transactions are detected.
// Only drivers with optimistic concurrency control pass it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	tx1 := database.WriteTx()
	defer tx1.Discard()
	tx2 := database.WriteTx()
	defer tx2.Discard()

	_, err := tx1.Get([]byte("counter"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = tx2.Get([]byte("counter"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx1.Set([]byte("counter"), []byte{1}), qt.IsNil)
	c.Assert(tx2.Set([]byte("counter"), []byte{2}), qt.IsNil)

	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get([]byte("counter"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte{1})
}
