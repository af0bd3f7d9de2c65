package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/changelog"
)

var _ changelog.Log = (*Backend)(nil)

// Append assigns the next Seq per change inside the active Transact
// transaction, writing each change under logKey(stream, seq) and
// advancing the per-stream seq counter.
func (b *Backend) Append(ctx context.Context, stream string, changes []change.Change) (uint64, error) {
	txn, err := b.mustTxn(ctx)
	if err != nil {
		return 0, err
	}

	seq, err := b.currentSeq(txn, stream)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", changelog.ErrLogAppendFailed, err)
	}

	for _, c := range changes {
		seq++
		payload, err := json.Marshal(c)
		if err != nil {
			return 0, fmt.Errorf("%w: encode change: %v", changelog.ErrLogAppendFailed, err)
		}
		if err := txn.Set(logKey(stream, seq), payload); err != nil {
			return 0, fmt.Errorf("%w: %v", changelog.ErrLogAppendFailed, err)
		}
	}

	if err := txn.Set(seqCounterKey(stream), seqBytes(seq)); err != nil {
		return 0, fmt.Errorf("%w: advance counter: %v", changelog.ErrLogAppendFailed, err)
	}
	return seq, nil
}

// Since returns entries for stream with Seq > afterSeq, ascending, at
// most limit. Fixed-width big-endian seq suffixes make badger's
// natural key-sorted iteration order equal ascending seq order.
func (b *Backend) Since(ctx context.Context, stream string, afterSeq uint64, limit uint32) ([]changelog.Entry, error) {
	if limit == 0 {
		limit = changelog.DefaultLimit
	}
	var out []changelog.Entry
	err := b.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = logPrefix(stream)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := logKey(stream, afterSeq+1)
		for it.Seek(start); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			var c change.Change
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &c) }); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			seq := seqFromKey(item.Key(), stream)
			out = append(out, changelog.Entry{Seq: seq, Stream: stream, Change: c})
			if uint32(len(out)) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", changelog.ErrLogPullFailed, err)
	}
	return out, nil
}

// Cursor returns the highest Seq assigned to stream so far.
func (b *Backend) Cursor(ctx context.Context, stream string) (uint64, error) {
	var seq uint64
	err := b.view(ctx, func(txn *badger.Txn) error {
		s, err := b.currentSeq(txn, stream)
		seq = s
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", changelog.ErrLogPullFailed, err)
	}
	return seq, nil
}

func (b *Backend) currentSeq(txn *badger.Txn, stream string) (uint64, error) {
	item, err := txn.Get(seqCounterKey(stream))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = item.Value(func(v []byte) error {
		seq = seqFromBytes(v)
		return nil
	})
	return seq, err
}

func seqFromKey(key []byte, stream string) uint64 {
	offset := 1 + len(stream) + 1
	return seqFromBytes(key[offset : offset+8])
}
