package inmemory

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/db/internal/dbtest"
	"github.com/vocdoni/sealbid-node/db/prefixeddb"
)

func newTestDB(t *testing.T) *InMemoryDB {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestWriteTxApply(t *testing.T) {
	dbtest.TestWriteTxApply(t, newTestDB(t))
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database := newTestDB(t)
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, []byte("one")))
}

func TestConcurrentWriteTx(t *testing.T) {
	dbtest.TestConcurrentWriteTx(t, newTestDB(t))
}

func TestClosedTx(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(wTx.Set([]byte("k"), []byte("v2")), qt.ErrorIs, db.ErrTxClosed)
	c.Assert(wTx.Commit(), qt.ErrorIs, db.ErrTxClosed)

	// deleted keys are dropped by Compact
	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("k")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(database.Compact(), qt.IsNil)
	c.Assert(database.data, qt.HasLen, 0)
}
