package badgerstore

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/eckerlein/rippledb/idempotency"
)

var _ idempotency.Store = (*Backend)(nil)

// Get looks up an idempotency record by (stream, key). Valid to call
// either inside or outside Transact.
func (b *Backend) Get(ctx context.Context, stream, key string) (idempotency.Record, bool, error) {
	var rec idempotency.Record
	found := false
	err := b.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(idemKeyBytes(stream, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			rec = idempotency.Record{Stream: stream, IdempotencyKey: key, LastSeq: seqFromBytes(v)}
			return nil
		})
	})
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("badgerstore: idempotency get: %w", err)
	}
	return rec, found, nil
}

// Put inserts or updates a record. Must be called inside Transact.
func (b *Backend) Put(ctx context.Context, rec idempotency.Record) error {
	txn, err := b.mustTxn(ctx)
	if err != nil {
		return err
	}
	if err := txn.Set(idemKeyBytes(rec.Stream, rec.IdempotencyKey), seqBytes(rec.LastSeq)); err != nil {
		return fmt.Errorf("badgerstore: idempotency put: %w", err)
	}
	return nil
}
