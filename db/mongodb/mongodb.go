// Package mongodb implements db.Database on a MongoDB collection. Keys are
// stored hex-encoded as the document _id so that range queries on the index
// keep the lexicographic byte order the db.Reader contract requires.
package mongodb

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/vocdoni/sealbid-node/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "kv"
	opTimeout      = 10 * time.Second
)

type document struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoDB implements db.Database. The database name is taken from
// db.Options.Path and the server from the MONGODB_URL environment variable.
type MongoDB struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ db.Database = (*MongoDB)(nil)

// New connects to MONGODB_URL and uses opts.Path as the database name.
func New(opts db.Options) (*MongoDB, error) {
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		return nil, fmt.Errorf("MONGODB_URL is not set")
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("missing mongodb database name")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoDB{
		client: client,
		coll:   client.Database(opts.Path).Collection(collectionName),
	}, nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Compact is a no-op, MongoDB manages its own storage.
func (d *MongoDB) Compact() error {
	return nil
}

func (d *MongoDB) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var doc document
	err := d.coll.FindOne(ctx, bson.M{"_id": hex.EncodeToString(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Value, nil
}

func (d *MongoDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, err := d.find(prefix)
	if err != nil {
		return err
	}
	iterateEntries(entries, len(prefix), callback)
	return nil
}

// find loads every document under prefix, keyed by the raw key.
func (d *MongoDB) find(prefix []byte) (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	filter := bson.M{}
	if len(prefix) > 0 {
		rng := bson.M{"$gte": hex.EncodeToString(prefix)}
		if end := upperBound(prefix); end != nil {
			rng["$lt"] = hex.EncodeToString(end)
		}
		filter["_id"] = rng
	}
	cursor, err := d.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()
	entries := make(map[string][]byte)
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		k, err := hex.DecodeString(doc.Key)
		if err != nil {
			return nil, fmt.Errorf("corrupted key %q: %w", doc.Key, err)
		}
		entries[string(k)] = doc.Value
	}
	return entries, cursor.Err()
}

func (d *MongoDB) WriteTx() db.WriteTx {
	return &WriteTx{db: d, writes: make(map[string]*[]byte)}
}

// WriteTx buffers writes in memory and flushes them with one ordered bulk
// write on Commit. It does not detect conflicts.
type WriteTx struct {
	db     *MongoDB
	writes map[string]*[]byte
	closed bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.writes[string(key)]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*v), nil
	}
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, err := tx.db.find(prefix)
	if err != nil {
		return err
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	iterateEntries(entries, len(prefix), callback)
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	v := bytes.Clone(value)
	tx.writes[string(key)] = &v
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.writes[string(key)] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T to a mongodb transaction", other)
	}
	maps.Copy(tx.writes, o.writes)
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(tx.writes))
	for _, k := range slices.Sorted(maps.Keys(tx.writes)) {
		id := hex.EncodeToString([]byte(k))
		if v := tx.writes[k]; v != nil {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": id}).
				SetReplacement(document{Key: id, Value: *v}).
				SetUpsert(true))
		} else {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := tx.db.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func (tx *WriteTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.closed = true
}

func iterateEntries(entries map[string][]byte, prefixLen int, callback func(key, value []byte) bool) {
	for _, k := range slices.Sorted(maps.Keys(entries)) {
		if !callback([]byte(k)[prefixLen:], entries[k]) {
			return
		}
	}
}

func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
