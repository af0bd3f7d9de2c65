// Package badgerstore is the durable reference backend: a Log, a
// Materializer, and an idempotency Store, all layered over one
// embedded github.com/dgraph-io/badger/v4 database, with Transact
// wrapping a single badger.Txn so the coordinator gets the spec §4.6
// atomicity contract for free. See spec §2 "Reference backends".
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/eckerlein/rippledb/schema"
)

// Key prefixes partition the single badger keyspace by concern,
// mirroring the single-byte-prefix convention in
// straga-Mimir_lite/nornicdb's storage package.
const (
	prefixTags   = byte(0x01) // tags:entity\x00id -> json(materializer.TagsRow)
	prefixDomain = byte(0x02) // domain:entity\x00id -> json(values)
	prefixLog    = byte(0x03) // log:stream\x00seq(8 BE) -> json(change.Change)
	prefixSeq    = byte(0x04) // seq:stream -> 8 BE current seq
	prefixIdem   = byte(0x05) // idem:stream\x00key -> 8 BE lastSeq
)

// Options configures a Backend.
type Options struct {
	// Dir is the directory badger stores its files in. Required
	// unless InMemory is set.
	Dir string

	// InMemory runs badger with no on-disk files, for tests.
	InMemory bool

	// SyncWrites forces an fsync after every commit.
	SyncWrites bool

	// Logger receives structured logs for backend lifecycle events
	// (open, close). Defaults to slog.Default().
	Logger *slog.Logger

	// Schema, if set, makes Save/Remove reject writes for entities the
	// descriptor doesn't know about (spec §7 UnknownEntity) and shapes
	// the domain-table coercions described in spec §3.2/§4.5. A nil
	// Schema skips validation and coercion entirely.
	Schema *schema.Descriptor
}

// Backend is the durable Log + Materializer + idempotency.Store,
// combined behind Transact.
type Backend struct {
	db     *badger.DB
	log    *slog.Logger
	schema *schema.Descriptor
}

// Open opens (creating if absent) a badger-backed Backend per opts.
func Open(opts Options) (*Backend, error) {
	bo := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bo = bo.WithInMemory(true)
	}
	if opts.SyncWrites {
		bo = bo.WithSyncWrites(true)
	}
	bo = bo.WithLogger(nil) // silence badger's own logger; backend events go to Options.Logger instead

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("badgerstore: opened", slog.String("dir", opts.Dir), slog.Bool("inMemory", opts.InMemory))
	return &Backend{db: db, log: logger, schema: opts.Schema}, nil
}

// Close releases the underlying badger database.
func (b *Backend) Close() error {
	b.log.Info("badgerstore: closing")
	return b.db.Close()
}

type txnContextKey struct{}

func withTxn(ctx context.Context, txn *badger.Txn) context.Context {
	return context.WithValue(ctx, txnContextKey{}, txn)
}

func txnFromContext(ctx context.Context) (*badger.Txn, bool) {
	txn, ok := ctx.Value(txnContextKey{}).(*badger.Txn)
	return txn, ok
}

// Transact runs fn inside a single read-write badger.Txn: every Log,
// Materializer, and idempotency.Store call fn makes against this
// Backend and a ctx derived from the one fn receives shares that one
// transaction, so they all commit or roll back together. This gives
// the coordinator spec §4.6's atomicity contract without Backend's
// component methods ever opening their own transactions. A commit that
// badger aborts with ErrConflict (an overlapping transaction committed
// first) is retried with a fresh transaction until it commits, fails
// for another reason, or ctx is done.
func (b *Backend) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		err := b.db.Update(func(txn *badger.Txn) error {
			return fn(withTxn(ctx, txn))
		})
		if !errors.Is(err, badger.ErrConflict) || ctx.Err() != nil {
			return err
		}
	}
}

// view runs fn against the active transaction from ctx if one is
// present (so reads inside Transact see uncommitted writes from the
// same transaction), else opens a fresh read-only view. Read paths
// like Pull are valid to call outside Transact.
func (b *Backend) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := txnFromContext(ctx); ok {
		return fn(txn)
	}
	return b.db.View(fn)
}

// mustTxn returns the active transaction from ctx, erroring if the
// caller invoked a write operation outside Transact.
func (b *Backend) mustTxn(ctx context.Context) (*badger.Txn, error) {
	txn, ok := txnFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("badgerstore: write operation called outside Transact")
	}
	return txn, nil
}

func seqBytes(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func seqFromBytes(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func tagsKey(entity, id string) []byte {
	key := make([]byte, 0, 1+len(entity)+1+len(id))
	key = append(key, prefixTags)
	key = append(key, entity...)
	key = append(key, 0x00)
	key = append(key, id...)
	return key
}

func domainKey(entity, id string) []byte {
	key := make([]byte, 0, 1+len(entity)+1+len(id))
	key = append(key, prefixDomain)
	key = append(key, entity...)
	key = append(key, 0x00)
	key = append(key, id...)
	return key
}

func logKey(stream string, seq uint64) []byte {
	key := make([]byte, 0, 1+len(stream)+1+8)
	key = append(key, prefixLog)
	key = append(key, stream...)
	key = append(key, 0x00)
	key = append(key, seqBytes(seq)...)
	return key
}

func logPrefix(stream string) []byte {
	key := make([]byte, 0, 1+len(stream)+1)
	key = append(key, prefixLog)
	key = append(key, stream...)
	key = append(key, 0x00)
	return key
}

func seqCounterKey(stream string) []byte {
	key := make([]byte, 0, 1+len(stream))
	key = append(key, prefixSeq)
	key = append(key, stream...)
	return key
}

func idemKeyBytes(stream, key string) []byte {
	buf := make([]byte, 0, 1+len(stream)+1+len(key))
	buf = append(buf, prefixIdem)
	buf = append(buf, stream...)
	buf = append(buf, 0x00)
	buf = append(buf, key...)
	return buf
}
