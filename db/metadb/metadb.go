// Package metadb opens a db.Database by driver name.
package metadb

import (
	"fmt"
	"os"
	"testing"

	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/db/inmemory"
	"github.com/vocdoni/sealbid-node/db/mongodb"
	"github.com/vocdoni/sealbid-node/db/pebbledb"
)

// New opens a database of the given type (db.TypePebble, db.TypeInMem or
// db.TypeMongo) at dir. For MongoDB dir is used as the database name.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeInMem:
		return inmemory.New(opts)
	case db.TypeMongo:
		return mongodb.New(opts)
	default:
		return nil, fmt.Errorf("invalid db type %q, available types: %s, %s, %s",
			typ, db.TypePebble, db.TypeInMem, db.TypeMongo)
	}
}

// NewTest opens a pebble database in a temporary directory that is removed
// when the test finishes.
func NewTest(tb testing.TB) db.Database {
	tb.Helper()
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil && !os.IsNotExist(err) {
			tb.Error(err)
		}
	})
	return database
}
