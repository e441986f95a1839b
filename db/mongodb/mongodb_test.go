package mongodb

import (
	"os"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/db/internal/dbtest"
	"github.com/vocdoni/sealbid-node/db/prefixeddb"
	"github.com/vocdoni/sealbid-node/util"
)

func newTestDB(t *testing.T) *MongoDB {
	if os.Getenv("MONGODB_URL") == "" {
		t.Skip("MONGODB_URL not set")
	}
	database, err := New(db.Options{Path: "test_" + util.RandomHex(8)})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
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

func TestUpperBound(t *testing.T) {
	c := qt.New(t)
	c.Assert(upperBound([]byte("p/")), qt.DeepEquals, []byte("p0"))
	c.Assert(upperBound([]byte{0xff}), qt.IsNil)
}
